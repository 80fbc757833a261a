// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the lobby handler.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	ServerClosedError   = 3001 // The server ended the session (kick, ban, sign-in elsewhere).
)
