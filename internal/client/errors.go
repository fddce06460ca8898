package client

import "fmt"

// TransportError reports a non-2xx response or a request that never got one.
type TransportError struct {
	URI        string
	Status     int
	StatusText string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("post %s: %v", e.URI, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("post %s: %d %s: %s", e.URI, e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("post %s: %d %s", e.URI, e.Status, e.StatusText)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a body or payload that is not the JSON we expected.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TrialLoadError 包装加载会话试次时的任何错误
type TrialLoadError struct {
	SessionID string
	Err       error
}

func (e *TrialLoadError) Error() string {
	return fmt.Sprintf("load trials for session %s: %v", e.SessionID, e.Err)
}

func (e *TrialLoadError) Unwrap() error { return e.Err }
