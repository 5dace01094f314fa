package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestPayload is any client message; fields unused by an action are empty.
type RequestPayload struct {
	Action   Action `json:"action"`
	Question int    `json:"question,omitempty"`
	Option   string `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventTick      Event = "tick"
	EventNotice    Event = "notice"
	EventSubmitted Event = "submitted"
	EventLogin     Event = "login"
	EventPong      Event = "pong"
)

// EventPayload wraps every server message.
type EventPayload struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type NoticeData struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
