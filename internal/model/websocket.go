package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports a job status transition
type WSProgressMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
	Detail string    `json:"detail,omitempty"`
}

// WSEventMessage mirrors a terminal event to WebSocket observers
type WSEventMessage struct {
	Type    string      `json:"type"`
	JobID   string      `json:"jobId"`
	Payload interface{} `json:"payload"`
}
