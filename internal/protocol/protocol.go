// Package protocol is the typed command/response contract between a player
// and the background context that renders for it.
package protocol

import (
	"fmt"
	"strings"

	"github.com/sharetube/vectorplayer/pkg/validator"
)

type Kind string

const (
	KindInit             Kind = "INIT"
	KindLoad             Kind = "LOAD"
	KindPlay             Kind = "PLAY"
	KindPause            Kind = "PAUSE"
	KindStop             Kind = "STOP"
	KindSeek             Kind = "SEEK"
	KindResize           Kind = "RESIZE"
	KindSetSpeed         Kind = "SET_SPEED"
	KindSetPlayback      Kind = "SET_PLAYBACK"
	KindUpdateCanvasInfo Kind = "UPDATE_CANVAS_INFO"

	KindReady    Kind = "READY"
	KindLoaded   Kind = "LOADED"
	KindFrame    Kind = "FRAME"
	KindError    Kind = "ERROR"
	KindComplete Kind = "COMPLETE"
	KindLoop     Kind = "LOOP"
)

type ErrorCode string

const (
	CodeInit     ErrorCode = "init"
	CodeLoad     ErrorCode = "load"
	CodeRender   ErrorCode = "render"
	CodeProtocol ErrorCode = "protocol"
)

// ProtocolError is a malformed, unknown or out-of-order message. The
// background context treats it as fatal for the session.
type ProtocolError struct {
	Kind   Kind
	Reason string
	Fields []validator.ValidationError
	Err    error
}

func (e *ProtocolError) Error() string {
	var b strings.Builder
	b.WriteString("protocol error")
	if e.Kind != "" {
		fmt.Fprintf(&b, " (%s)", e.Kind)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	for _, f := range e.Fields {
		b.WriteString("; ")
		b.WriteString(f.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
