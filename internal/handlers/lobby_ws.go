// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/lobbyd/internal/lobby"
	"github.com/jason-s-yu/lobbyd/internal/middleware"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	flushTimeout = time.Second
)

// LobbyWSHandler accepts lobby client sockets. Each socket gets its own LobbyConnection and
// its messages are handled one at a time in arrival order.
func LobbyWSHandler(logger *logrus.Logger, svc *lobby.Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		// Cleanup must outlive the request context.
		baseCtx := context.WithoutCancel(r.Context())

		// sessionCtx is cancelled by LobbyConnection.Abort or when the reader stops.
		sessionCtx, cancel := context.WithCancel(r.Context())
		defer cancel()
		conn := lobby.NewLobbyConnection(svc, remoteAddr, cancel)
		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writePump(sessionCtx, c, conn, logger)
		}()

		readErr := readPump(r.Context(), baseCtx, c, conn, logger)

		cancel()
		<-writerDone
		conn.OnConnectionLost(baseCtx)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, readErr)
	}
}

// readPump feeds incoming frames to the connection until the socket closes.
func readPump(readCtx, handleCtx context.Context, c *websocket.Conn, conn *lobby.LobbyConnection, logger *logrus.Logger) error {
	for {
		typ, msg, err := c.Read(readCtx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, ServerClosedError:
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			logger.Warnf("lobby: non-text message type %d from %s ignored", typ, conn.Address)
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("lobby: invalid json from %s: %v", conn.Address, err)
			conn.SendNotice("error", "Invalid JSON format")
			continue
		}

		conn.HandleMessage(handleCtx, packet)
	}
}

// writePump drains OutChan onto the socket and keeps the connection alive with pings. When
// ctx ends it flushes whatever is still queued and closes the socket, which also stops
// readPump.
func writePump(ctx context.Context, c *websocket.Conn, conn *lobby.LobbyConnection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			flushPending(flushCtx, c, conn)
			cancel()
			_ = c.Close(ServerClosedError, "session closed")
			return

		case msg := <-conn.OutChan:
			if err := writeMessage(ctx, c, msg); err != nil {
				logger.Warnf("lobby: failed to write to %s: %v", conn.Address, err)
				conn.Abort("write failed")
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("lobby: ping to %s failed: %v", conn.Address, err)
				conn.Abort("ping failed")
			}
		}
	}
}

func flushPending(ctx context.Context, c *websocket.Conn, conn *lobby.LobbyConnection) {
	for {
		select {
		case msg := <-conn.OutChan:
			if err := writeMessage(ctx, c, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func writeMessage(ctx context.Context, c *websocket.Conn, msg map[string]interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}
