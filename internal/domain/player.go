package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/mo"
)

type PlayerState int

const (
	StateLoading PlayerState = iota
	StateStopped
	StatePlaying
	StatePaused
	StateFrozen
	StateError
	StateDestroyed
)

func (s PlayerState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFrozen:
		return "frozen"
	case StateError:
		return "error"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}

	return "forward"
}

func (d Direction) Reverse() Direction {
	if d == Backward {
		return Forward
	}

	return Backward
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "forward", "1", "":
		return Forward, nil
	case "backward", "-1":
		return Backward, nil
	default:
		return Forward, fmt.Errorf("unknown direction %q", s)
	}
}

type Mode int

const (
	ModeNormal Mode = iota
	ModeBounce
)

func (m Mode) String() string {
	switch m {
	case ModeBounce:
		return "bounce"
	default:
		return "normal"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "normal", "":
		return ModeNormal, nil
	case "bounce":
		return ModeBounce, nil
	default:
		return ModeNormal, fmt.Errorf("unknown mode %q", s)
	}
}

var (
	ErrInvalidSpeed        = errors.New("speed must be greater than 0")
	ErrInvalidRepeatCount  = errors.New("repeat count must be greater than 0")
	ErrInvalidIntermission = errors.New("intermission must not be negative")
)

type PlaybackParameters struct {
	Speed               float64
	Direction           Direction
	Loop                bool
	RepeatCount         mo.Option[int]
	Mode                Mode
	IntermissionSeconds float64
}

func DefaultPlaybackParameters() PlaybackParameters {
	return PlaybackParameters{
		Speed:       1,
		Direction:   Forward,
		RepeatCount: mo.None[int](),
		Mode:        ModeNormal,
	}
}

func (p PlaybackParameters) Validate() error {
	if p.Speed <= 0 {
		return ErrInvalidSpeed
	}
	if n, ok := p.RepeatCount.Get(); ok && n < 1 {
		return ErrInvalidRepeatCount
	}
	if p.IntermissionSeconds < 0 {
		return ErrInvalidIntermission
	}

	return nil
}

// EffectiveRepeatLimit doubles the configured count in bounce mode, each leg counts as one pass.
func (p PlaybackParameters) EffectiveRepeatLimit() int {
	n, ok := p.RepeatCount.Get()
	if !ok {
		return 0
	}
	if p.Mode == ModeBounce {
		return n * 2
	}

	return n
}
