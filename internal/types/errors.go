package types

import "fmt"

// ResourceUnavailableError is returned when a video, model or image cannot be opened.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resource unavailable: %s", e.Resource)
	}
	return fmt.Sprintf("resource unavailable: %s: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// FrameReadError is a transient per-frame failure. Callers log and skip.
type FrameReadError struct {
	Frame int
	Err   error
}

func (e *FrameReadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to read frame %d", e.Frame)
	}
	return fmt.Sprintf("failed to read frame %d: %v", e.Frame, e.Err)
}

func (e *FrameReadError) Unwrap() error {
	return e.Err
}

// EncodingError means a cropped face produced no usable embedding.
type EncodingError struct {
	Frame int
	Face  int
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no embedding for frame %d face %d", e.Frame, e.Face)
	}
	return fmt.Sprintf("no embedding for frame %d face %d: %v", e.Frame, e.Face, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned for an invalid run parameter, before any processing starts.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s '%v': %s", e.Field, e.Value, e.Reason)
}

// IOError is a failure writing an output artifact. It is fatal for that artifact only.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
