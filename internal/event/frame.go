package event

import "time"

// Frame types used on the WebSocket wire.
const (
	TypeAgentInsight     = "agent_insight"
	TypeAgentProgress    = "agent_progress"
	TypeAgentStatus      = "agent_status"
	TypeAnalysisComplete = "analysis_complete"
	TypeError            = "error"
	TypePong             = "pong"
)

// Frame is one outbound JSON message: a type tag, a type-specific payload,
// and the moment it was framed.
type Frame struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewFrame(typ string, data any) Frame {
	return Frame{Type: typ, Data: data, Timestamp: time.Now().UTC()}
}

func ErrorFrame(msg string) Frame {
	return NewFrame(TypeError, map[string]string{"error": msg})
}

func PongFrame() Frame {
	return Frame{Type: TypePong, Timestamp: time.Now().UTC()}
}
