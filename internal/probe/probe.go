// Package probe detects which GPU renderer tiers the host can use.
//
// Results are advisory. The engine context attempts a tier regardless and
// discovers failure empirically.
package probe

import (
	"fmt"
	"log/slog"
)

type Capabilities struct {
	WebGPU bool `json:"webgpu"`
	WebGL  bool `json:"webgl"`
}

// Prober checks one capability each. An error or a panic counts as unavailable.
type Prober interface {
	ProbeWebGPU() (bool, error)
	ProbeWebGL() (bool, error)
}

func Detect(p Prober) Capabilities {
	if p == nil {
		return Capabilities{}
	}

	return Capabilities{
		WebGPU: safely("webgpu", p.ProbeWebGPU),
		WebGL:  safely("webgl", p.ProbeWebGL),
	}
}

// Default probes the native stack when built with the gpu tag.
func Default() Capabilities {
	return Detect(nativeProber{})
}

func safely(name string, probe func() (bool, error)) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("capability probe panicked", "capability", name, "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	ok, err := probe()
	if err != nil {
		slog.Debug("capability probe failed", "capability", name, "error", err)
		return false
	}

	return ok
}
