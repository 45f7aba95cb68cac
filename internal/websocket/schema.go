package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionCaptcha        Action = "captcha"
	ActionCaptchaExpired Action = "captcha_expired"
	ActionStart          Action = "start"
	ActionStage          Action = "stage"
	ActionAnswer         Action = "answer"
	ActionVisibility     Action = "visibility"
	ActionRetrySubmit    Action = "retry_submit"
	ActionReset          Action = "reset"
	ActionPing           Action = "ping"
)

// RequestPayload is every client message. Only the fields of the given
// action are read.
type RequestPayload struct {
	Action Action `json:"action" binding:"required"`
	Token  string `json:"token,omitempty" binding:"max=4096"`
	Text   string `json:"text,omitempty" binding:"max=4000"`
	State  string `json:"state,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState      Event = "state"
	EventError      Event = "error"
	EventPong       Event = "pong"
	EventSuperseded Event = "superseded"
)

// ResponsePayload is every server message.
type ResponsePayload struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody mirrors response.ErrorBody for socket clients.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
