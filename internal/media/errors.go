package media

import (
	"fmt"
	"time"
)

// DecodeError reports that an asset could not be read past Window.
// Frames for windows 0..Window-1 remain valid.
type DecodeError struct {
	Path   string
	Window int
	At     time.Duration
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Window > 0 {
		return fmt.Sprintf("decode %s: failed at window %d (%s): %v", e.Path, e.Window, e.At, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InsufficientContentError reports that an asset yielded no usable scenes.
type InsufficientContentError struct {
	Path   string
	Reason string
}

func (e *InsufficientContentError) Error() string {
	return fmt.Sprintf("insufficient content in %s: %s", e.Path, e.Reason)
}

// ConfigurationError rejects a parameter before any asset is processed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// EncodeError reports an encoder failure for one output.
type EncodeError struct {
	Output string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Output, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
