package decode

import "fmt"

// Kind classifies decode failures.
type Kind int

const (
	// UnrecognizedFormat means no registered decoder matched the byte signature.
	UnrecognizedFormat Kind = iota + 1
	// CorruptData means the format was recognized but decoding failed.
	CorruptData
	// UnsupportedLayout means the decoded pixels have no pixel.Layout (palette, alpha-only).
	UnsupportedLayout
)

func (k Kind) String() string {
	switch k {
	case UnrecognizedFormat:
		return "unrecognized format"
	case CorruptData:
		return "corrupt data"
	case UnsupportedLayout:
		return "unsupported layout"
	default:
		return "unknown"
	}
}

// Error is returned by Decode and Sniff.
type Error struct {
	Kind   Kind
	Format string // detected format name, empty when unknown
	Err    error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrUnrecognizedFormat = &Error{Kind: UnrecognizedFormat}
	ErrCorruptData        = &Error{Kind: CorruptData}
	ErrUnsupportedLayout  = &Error{Kind: UnsupportedLayout}
)

func (e *Error) Error() string {
	msg := "decode: " + e.Kind.String()
	if e.Format != "" {
		msg += fmt.Sprintf(" (%s)", e.Format)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
