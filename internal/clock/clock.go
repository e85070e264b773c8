// Package clock maps wall-clock time to animation frames.
//
// Every function here is pure with respect to time: callers pass now in, so a
// tick can be replayed deterministically.
package clock

import (
	"time"

	"github.com/samber/lo"

	"github.com/sharetube/vectorplayer/internal/domain"
)

type Outcome int

const (
	Advanced Outcome = iota
	Looped
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Looped:
		return "looped"
	case Completed:
		return "completed"
	default:
		return "advanced"
	}
}

type State struct {
	Begin         time.Time
	TotalFrames   float64
	Duration      float64 // seconds
	CurrentFrame  float64
	RepeatCounter int
}

func (s *State) Loaded() bool {
	return s.TotalFrames >= 1 && s.Duration > 0
}

type Tick struct {
	Frame        float64
	Outcome      Outcome
	Intermission time.Duration
}

// Advance computes the frame for now and applies the loop/bounce/completion
// policy. params.Direction is flipped in place on a bounce reversal.
func Advance(st *State, params *domain.PlaybackParameters, now time.Time) Tick {
	if !st.Loaded() {
		return Tick{Outcome: Completed}
	}

	elapsed := now.Sub(st.Begin).Seconds()
	frame := elapsed / st.Duration * st.TotalFrames * params.Speed
	if params.Direction == domain.Backward {
		frame = st.TotalFrames - frame
	}

	completed := (params.Direction == domain.Forward && frame >= st.TotalFrames) ||
		(params.Direction == domain.Backward && frame <= 0)
	if !completed {
		st.CurrentFrame = lo.Clamp(frame, 0, st.TotalFrames)
		return Tick{Frame: st.CurrentFrame, Outcome: Advanced}
	}

	limit := params.EffectiveRepeatLimit()
	if params.Loop || (limit > 0 && st.RepeatCounter < limit) {
		if params.Mode == domain.ModeBounce {
			params.Direction = params.Direction.Reverse()
		}
		st.CurrentFrame = startBoundary(st, params.Direction)
		if _, ok := params.RepeatCount.Get(); ok {
			st.RepeatCounter++
		}
		st.Begin = now

		return Tick{
			Frame:        st.CurrentFrame,
			Outcome:      Looped,
			Intermission: time.Duration(params.IntermissionSeconds * float64(time.Second)),
		}
	}

	st.CurrentFrame = endBoundary(st, params.Direction)
	return Tick{Frame: st.CurrentFrame, Outcome: Completed}
}

// Seek moves the clock to frame and rewrites Begin so Advance derives the same frame at now.
func Seek(st *State, params *domain.PlaybackParameters, frame float64, now time.Time) {
	st.CurrentFrame = lo.Clamp(frame, 0, st.TotalFrames)
	st.Begin = now.Add(-elapsedFor(st, params, st.CurrentFrame))
}

// Resume re-anchors Begin at the current frame, used after pause, speed or direction changes.
func Resume(st *State, params *domain.PlaybackParameters, now time.Time) {
	Seek(st, params, st.CurrentFrame, now)
}

// Rewind moves to the start boundary of the current direction and clears the repeat budget.
func Rewind(st *State, params *domain.PlaybackParameters, now time.Time) {
	st.RepeatCounter = 0
	Seek(st, params, startBoundary(st, params.Direction), now)
}

func elapsedFor(st *State, params *domain.PlaybackParameters, frame float64) time.Duration {
	if !st.Loaded() || params.Speed <= 0 {
		return 0
	}

	progress := frame
	if params.Direction == domain.Backward {
		progress = st.TotalFrames - frame
	}
	seconds := progress / st.TotalFrames * st.Duration / params.Speed

	return time.Duration(seconds * float64(time.Second))
}

func startBoundary(st *State, d domain.Direction) float64 {
	return StartBoundary(st.TotalFrames, d)
}

// StartBoundary is the frame playback in direction d starts from.
func StartBoundary(totalFrames float64, d domain.Direction) float64 {
	return lo.Ternary(d == domain.Forward, 0, totalFrames)
}

func endBoundary(st *State, d domain.Direction) float64 {
	return lo.Ternary(d == domain.Forward, st.TotalFrames, 0)
}
