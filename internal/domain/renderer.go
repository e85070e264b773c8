package domain

import (
	"fmt"
	"strings"
)

type RendererKind int

const (
	RendererSoftware RendererKind = iota
	RendererWebGL
	RendererWebGPU
)

func (k RendererKind) String() string {
	switch k {
	case RendererSoftware:
		return "software"
	case RendererWebGL:
		return "webgl"
	case RendererWebGPU:
		return "webgpu"
	default:
		return fmt.Sprintf("renderer(%d)", int(k))
	}
}

// Fallback returns the next lower tier. Software is terminal.
func (k RendererKind) Fallback() (RendererKind, bool) {
	switch k {
	case RendererWebGPU:
		return RendererWebGL, true
	case RendererWebGL:
		return RendererSoftware, true
	case RendererSoftware:
		return RendererSoftware, false
	default:
		return RendererSoftware, false
	}
}

func (k RendererKind) Valid() bool {
	switch k {
	case RendererSoftware, RendererWebGL, RendererWebGPU:
		return true
	default:
		return false
	}
}

func ParseRendererKind(s string) (RendererKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "software", "sw", "":
		return RendererSoftware, nil
	case "webgl", "gl":
		return RendererWebGL, nil
	case "webgpu", "gpu":
		return RendererWebGPU, nil
	default:
		return RendererSoftware, fmt.Errorf("unknown renderer kind %q", s)
	}
}

func (k RendererKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid renderer kind %d", int(k))
	}

	return []byte(k.String()), nil
}

func (k *RendererKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRendererKind(string(text))
	if err != nil {
		return err
	}

	*k = parsed
	return nil
}

type InitStatus int

const (
	InitIdle InitStatus = iota
	InitRequested
	InitInitialized
	InitFailed
)

func (s InitStatus) String() string {
	switch s {
	case InitIdle:
		return "idle"
	case InitRequested:
		return "requested"
	case InitInitialized:
		return "initialized"
	case InitFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FallbackEvent records one step down the renderer tier chain.
type FallbackEvent struct {
	Requested RendererKind `json:"requested_kind"`
	Fallback  RendererKind `json:"fallback_kind"`
	Message   string       `json:"message"`
}
