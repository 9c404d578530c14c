// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RecordMatchResult persists the final outcome of a match: one row per match
// and one row per seated player with their token count. Game ids are the
// client-chosen strings, not uuids, so the matches table keys on text.
func RecordMatchResult(ctx context.Context, gameID, winnerID string, scores map[string]int) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertMatch := `
			INSERT INTO matches (game_id, winner_id, status, ended_at)
			VALUES ($1, $2, 'completed', NOW())
			ON CONFLICT (game_id)
			DO UPDATE SET winner_id = $2, status = 'completed', ended_at = NOW()
		`
		if _, e := tx.Exec(ctx, upsertMatch, gameID, winnerID); e != nil {
			return e
		}

		for userID, tokens := range scores {
			q := `
				INSERT INTO match_results (game_id, user_id, tokens, did_win)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (game_id, user_id)
				DO UPDATE SET tokens = $3, did_win = $4
			`
			if _, e := tx.Exec(ctx, q, gameID, userID, tokens, userID == winnerID); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert match results: %w", err)
	}
	return nil
}
