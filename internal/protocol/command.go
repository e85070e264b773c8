package protocol

import (
	"fmt"

	"github.com/samber/mo"

	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/internal/surface"
)

// Command is sent from the player side. The set is closed.
type Command interface {
	Kind() Kind
	command()
}

type RenderConfig struct {
	Renderer        domain.RendererKind `json:"renderer"`
	FrameIntervalMs int                 `json:"frame_interval_ms,omitempty" validate:"gte=0"`
}

type Init struct {
	WasmURL             string             `json:"wasm_url,omitempty" validate:"omitempty,url"`
	RenderConfig        *RenderConfig      `json:"render_config,omitempty"`
	UseExclusiveSurface bool               `json:"use_exclusive_surface,omitempty"`
	CanvasInfo          *domain.CanvasInfo `json:"canvas_info,omitempty"`
	// Surface is handed over only on in-process transports. The sender must
	// drop its own reference once Init is sent.
	Surface surface.Surface `json:"-"`
}

type Load struct {
	LoadID   uint64          `json:"load_id"`
	Src      source.Source   `json:"src"`
	FileType source.FileType `json:"file_type,omitempty" validate:"omitempty,oneof=json lottie"`
}

type Play struct{}

type Pause struct{}

type Stop struct{}

type Seek struct {
	Frame float64 `json:"frame" validate:"gte=0"`
}

type Resize struct {
	CanvasInfo domain.CanvasInfo `json:"canvas_info"`
}

type SetSpeed struct {
	Speed float64 `json:"speed" validate:"gt=0"`
}

type SetPlayback struct {
	Direction    string  `json:"direction" validate:"omitempty,oneof=forward backward"`
	Loop         bool    `json:"loop"`
	RepeatCount  *int    `json:"repeat_count,omitempty" validate:"omitempty,gt=0"`
	Mode         string  `json:"mode" validate:"omitempty,oneof=normal bounce"`
	Intermission float64 `json:"intermission" validate:"gte=0"`
}

type UpdateCanvasInfo struct {
	CanvasInfo domain.CanvasInfo `json:"canvas_info"`
}

func (Init) Kind() Kind             { return KindInit }
func (Load) Kind() Kind             { return KindLoad }
func (Play) Kind() Kind             { return KindPlay }
func (Pause) Kind() Kind            { return KindPause }
func (Stop) Kind() Kind             { return KindStop }
func (Seek) Kind() Kind             { return KindSeek }
func (Resize) Kind() Kind           { return KindResize }
func (SetSpeed) Kind() Kind         { return KindSetSpeed }
func (SetPlayback) Kind() Kind      { return KindSetPlayback }
func (UpdateCanvasInfo) Kind() Kind { return KindUpdateCanvasInfo }

func (Init) command()             {}
func (Load) command()             {}
func (Play) command()             {}
func (Pause) command()            {}
func (Stop) command()             {}
func (Seek) command()             {}
func (Resize) command()           {}
func (SetSpeed) command()         {}
func (SetPlayback) command()      {}
func (UpdateCanvasInfo) command() {}

// NewSetPlayback carries every parameter except speed, which has SET_SPEED.
func NewSetPlayback(p domain.PlaybackParameters) SetPlayback {
	cmd := SetPlayback{
		Direction:    p.Direction.String(),
		Loop:         p.Loop,
		Mode:         p.Mode.String(),
		Intermission: p.IntermissionSeconds,
	}
	if n, ok := p.RepeatCount.Get(); ok {
		cmd.RepeatCount = &n
	}

	return cmd
}

// Apply overlays the command on base and validates the result.
func (c SetPlayback) Apply(base domain.PlaybackParameters) (domain.PlaybackParameters, error) {
	dir, err := domain.ParseDirection(c.Direction)
	if err != nil {
		return base, fmt.Errorf("failed to parse direction: %w", err)
	}
	mode, err := domain.ParseMode(c.Mode)
	if err != nil {
		return base, fmt.Errorf("failed to parse mode: %w", err)
	}

	p := base
	p.Direction = dir
	p.Loop = c.Loop
	p.Mode = mode
	p.IntermissionSeconds = c.Intermission
	p.RepeatCount = mo.PointerToOption(c.RepeatCount)

	if err := p.Validate(); err != nil {
		return base, err
	}

	return p, nil
}
