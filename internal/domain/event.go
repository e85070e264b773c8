package domain

type EventKind string

const (
	EventReady            EventKind = "ready"
	EventLoad             EventKind = "load"
	EventPlay             EventKind = "play"
	EventPause            EventKind = "pause"
	EventStop             EventKind = "stop"
	EventFrame            EventKind = "frame"
	EventLoop             EventKind = "loop"
	EventComplete         EventKind = "complete"
	EventFreeze           EventKind = "freeze"
	EventError            EventKind = "error"
	EventRendererFallback EventKind = "rendererFallback"
	EventDestroyed        EventKind = "destroyed"
	// diagnostic only, never changes player state
	EventRenderError EventKind = "renderError"
)

type Event struct {
	Kind     EventKind      `json:"kind"`
	Frame    float64        `json:"frame,omitempty"`
	Message  string         `json:"message,omitempty"`
	Fallback *FallbackEvent `json:"fallback,omitempty"`
}
