// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/junglefunkyman/loveletter/internal/auth"
	"github.com/junglefunkyman/loveletter/internal/cache"
	"github.com/junglefunkyman/loveletter/internal/database"
	"github.com/junglefunkyman/loveletter/internal/engine"
	"github.com/junglefunkyman/loveletter/internal/handlers"
	"github.com/junglefunkyman/loveletter/internal/middleware"
	"github.com/junglefunkyman/loveletter/internal/session"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Postgres and Redis are optional; without them the server still runs
	// games but skips accounts, match results, and the historian queue.
	if os.Getenv("DATABASE_URL") != "" || os.Getenv("PG_HOST") != "" {
		if err := database.ConnectDB(); err != nil {
			logger.Fatalf("database connection failed: %v", err)
		}
	} else {
		logger.Warn("no database configured, account persistence disabled")
	}
	redisReady := false
	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			logger.Fatalf("redis connection failed: %v", err)
		}
		redisReady = true
	} else {
		logger.Warn("no redis configured, historian queue disabled")
	}

	registry := session.NewRegistry(logger, engine.Config{})
	if redisReady {
		registry.History = func(gameID string, seq int, events []engine.Event) {
			if err := cache.PublishEventBatch(context.Background(), gameID, seq, events); err != nil {
				logger.Warnf("historian publish failed for game %s: %v", gameID, err)
			}
		}
	}
	if database.Ready() {
		registry.OnResult = func(gameID, winnerID string, scores map[string]int) {
			if err := database.RecordMatchResult(context.Background(), gameID, winnerID, scores); err != nil {
				logger.Warnf("failed to record match result for game %s: %v", gameID, err)
			}
		}
	}

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/claim", handlers.ClaimEphemeralHandler)

	// game websocket
	mux.Handle("/game/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GameWSHandler(logger, registry, handlers.EnsureEphemeralUser),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
