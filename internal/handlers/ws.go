// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/junglefunkyman/loveletter/internal/protocol"
	"github.com/junglefunkyman/loveletter/internal/session"
)

// UserResolver supplies the stable opaque user id for a connection. The core
// never re-derives identity; whatever the resolver returns is trusted for
// the connection's lifetime.
type UserResolver func(w http.ResponseWriter, r *http.Request) (string, error)

const writeTimeout = 3 * time.Second

// GameWSHandler upgrades the connection, resolves the user identity, and
// runs the per-connection read and write loops against a PlayerSession.
func GameWSHandler(logger *logrus.Logger, registry *session.Registry, resolve UserResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Resolve identity before the upgrade so a fresh auth cookie can
		// ride the handshake response.
		userID, err := resolve(w, r)
		if err != nil {
			logger.Warnf("user resolution failed: %v", err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal error during handler exit")
		logger.Infof("websocket connection established for user %s from %s", userID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		ps := session.NewPlayerSession(userID, registry, logger)
		defer ps.Close()

		greet(ctx, c, fmt.Sprintf("Hi there %s, I am a WebSocket server", userID))

		go writeStates(ctx, c, ps, logger)

		readMessages(ctx, c, ps, logger)
		logger.Infof("read loop exited for user %s", userID)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// writeStates pumps the actor's outbound board states onto the wire.
func writeStates(ctx context.Context, c *websocket.Conn, ps *session.PlayerSession, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ps.Out():
			data, err := json.Marshal(snap)
			if err != nil {
				logger.Errorf("failed to marshal board state for user %s: %v", ps.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("failed to write board state to user %s: %v", ps.UserID, err)
				return
			}
		}
	}
}

// readMessages decodes inbound frames and dispatches them to the player
// session, answering every failure with a typed error envelope on the
// offending connection only.
func readMessages(ctx context.Context, c *websocket.Conn, ps *session.PlayerSession, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for user %s", ps.UserID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("websocket context canceled for user %s", ps.UserID)
			} else {
				logger.Warnf("websocket read error for user %s: %v", ps.UserID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			sendEnvelope(ctx, c, protocol.CodeInvalidMessage, "only text frames are accepted", logger)
			continue
		}

		msg, decErr := protocol.Decode(data)
		if decErr != nil {
			logger.Debugf("rejected frame from user %s: %v", ps.UserID, decErr)
			env := decErr.Envelope()
			sendEnvelope(ctx, c, env.ErrorCode, env.Message, logger)
			continue
		}

		if err := ps.HandleMessage(msg); err != nil {
			sendEnvelope(ctx, c, session.CodeFor(err), err.Error(), logger)
		}
	}
}

// sendEnvelope writes an error envelope with a bounded write timeout.
func sendEnvelope(ctx context.Context, c *websocket.Conn, code protocol.ErrorCode, message string, logger *logrus.Logger) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, protocol.EncodeError(code, message)); err != nil {
		logger.Warnf("failed to write error envelope: %v", err)
	}
}

// greet sends the non-contractual hello frame.
func greet(ctx context.Context, c *websocket.Conn, text string) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.Write(writeCtx, websocket.MessageText, []byte(text))
}
