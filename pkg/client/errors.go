package client

import "fmt"

// URLResolutionError means a path could not be joined onto the base address
type URLResolutionError struct {
	Path string
	Err  error
}

func (e *URLResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Path, e.Err)
}

func (e *URLResolutionError) Unwrap() error { return e.Err }

// TransportError covers refused connections, timeouts and truncated bodies
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is any response with an unexpected status code
type ServerError struct {
	Status int
	Text   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("agent returned status %d: %s", e.Status, e.Text)
}

type DecodeStage int

const (
	StageUTF8 DecodeStage = iota + 1
	StageJSON
	StageShape
)

func (s DecodeStage) String() string {
	switch s {
	case StageUTF8:
		return "not valid UTF-8"
	case StageJSON:
		return "not valid JSON"
	case StageShape:
		return "JSON does not match expected shape"
	default:
		return "unknown"
	}
}

// DecodeError reports which stage of response decoding failed
type DecodeError struct {
	Stage DecodeStage
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode response: " + e.Stage.String()
	}
	return fmt.Sprintf("decode response: %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
