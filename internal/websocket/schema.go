package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	// ActionPing keeps the stream alive without touching the countdown.
	ActionPing Action = "ping"
	// ActionFinish ends the session early.
	ActionFinish Action = "finish"
)

// RequestEnvelope is every client message.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventTick      Event = "tick"
	EventCompleted Event = "completed"
	EventPong      Event = "pong"
)

// TickResponse reports the remaining time after one decrement.
type TickResponse struct {
	Event            Event  `json:"event"`
	SessionID        string `json:"session_id"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// CompletedResponse is the last message before the server closes the stream.
type CompletedResponse struct {
	Event     Event  `json:"event"`
	SessionID string `json:"session_id"`
	EndTime   string `json:"end_time,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
