package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// PongWait bounds the silence allowed between client messages.
	PongWait = 2 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteJSON wraps data in an event envelope.
func WriteJSON(conn *websocket.Conn, event Event, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return WriteTyped(conn, ResponsePayload{Event: event, Data: raw})
}

// WriteError sends an error event.
func WriteError(conn *websocket.Conn, code, message string) error {
	return WriteTyped(conn, ResponsePayload{
		Event: EventError,
		Error: &ErrorBody{Code: code, Message: message},
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(PongWait))
	return conn.ReadJSON(v)
}

// WriteClose sends a close frame with code and reason.
func WriteClose(conn *websocket.Conn, code int, reason string) error {
	return conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
