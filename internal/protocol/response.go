package protocol

import "github.com/sharetube/vectorplayer/internal/domain"

// Response is sent from the background context. The set is closed.
type Response interface {
	Kind() Kind
	response()
}

type Ready struct {
	Renderer             domain.RendererKind    `json:"renderer"`
	Fallbacks            []domain.FallbackEvent `json:"fallbacks,omitempty"`
	UsesExclusiveSurface bool                   `json:"uses_exclusive_surface"`
}

type Loaded struct {
	LoadID     uint64  `json:"load_id"`
	TotalFrame float64 `json:"total_frame" validate:"gte=1"`
	Duration   float64 `json:"duration" validate:"gt=0"`
	Size       [2]int  `json:"size"`
}

// Frame announces a tick when ImageData is empty. A Frame with ImageData
// carries the pixels of a rendered frame and is not a tick.
type Frame struct {
	FrameNumber          float64 `json:"frame_number" validate:"gte=0"`
	ImageData            []byte  `json:"image_data,omitempty"`
	Width                int     `json:"width,omitempty" validate:"gte=0"`
	Height               int     `json:"height,omitempty" validate:"gte=0"`
	UsesExclusiveSurface bool    `json:"uses_exclusive_surface,omitempty"`
}

type Error struct {
	Code    ErrorCode `json:"code" validate:"required,oneof=init load render protocol"`
	Message string    `json:"message" validate:"required"`
	Cause   string    `json:"cause,omitempty"`
	LoadID  uint64    `json:"load_id,omitempty"`
}

type Complete struct{}

type Loop struct{}

func (Ready) Kind() Kind    { return KindReady }
func (Loaded) Kind() Kind   { return KindLoaded }
func (Frame) Kind() Kind    { return KindFrame }
func (Error) Kind() Kind    { return KindError }
func (Complete) Kind() Kind { return KindComplete }
func (Loop) Kind() Kind     { return KindLoop }

func (Ready) response()    {}
func (Loaded) response()   {}
func (Frame) response()    {}
func (Error) response()    {}
func (Complete) response() {}
func (Loop) response()     {}

// Fatal reports whether the error ends the player's current attempt.
func (e Error) Fatal() bool {
	switch e.Code {
	case CodeInit, CodeLoad, CodeProtocol:
		return true
	case CodeRender:
		return false
	default:
		return true
	}
}
