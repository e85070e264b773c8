// Package source turns the src of a load request into animation bytes.
package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type FileType string

const (
	// FileTypeJSON is animation data. A string source is parsed as a literal
	// first and treated as a locator only when it is not valid JSON.
	FileTypeJSON FileType = "json"
	// FileTypeLottie is a binary container. A string source is always a locator.
	FileTypeLottie FileType = "lottie"
)

func ParseFileType(s string) (FileType, error) {
	switch FileType(strings.ToLower(s)) {
	case FileTypeJSON, "":
		return FileTypeJSON, nil
	case FileTypeLottie:
		return FileTypeLottie, nil
	default:
		return "", fmt.Errorf("unknown file type %q", s)
	}
}

var (
	ErrEmptySource       = errors.New("source is empty")
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")
	ErrHostNotAllowed    = errors.New("locator host is not allowed")
)

// Source is exactly one of a string or raw bytes. Inline structured values
// are carried as their JSON encoding.
type Source struct {
	Text *string `json:"text,omitempty"`
	Data []byte  `json:"data,omitempty"`
}

func FromString(s string) Source {
	return Source{Text: &s}
}

func FromBytes(b []byte) Source {
	return Source{Data: b}
}

func FromValue(v any) (Source, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Source{}, fmt.Errorf("failed to encode inline source: %w", err)
	}

	return Source{Data: data}, nil
}

func (s Source) Empty() bool {
	return s.Text == nil && len(s.Data) == 0
}

func (s Source) String() string {
	switch {
	case len(s.Data) > 0:
		return fmt.Sprintf("bytes(%d)", len(s.Data))
	case s.Text != nil:
		if len(*s.Text) > 64 {
			return fmt.Sprintf("text(%q...)", (*s.Text)[:64])
		}
		return fmt.Sprintf("text(%q)", *s.Text)
	default:
		return "empty"
	}
}
