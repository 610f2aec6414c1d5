package llm

import "fmt"

// ErrorKind classifies an UpstreamError for retry/reporting decisions.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindTimeout   ErrorKind = "timeout"
	KindPermanent ErrorKind = "permanent"
	KindCancelled ErrorKind = "cancelled"
)

// UpstreamError is returned by completeBlocking/completeStreaming whenever
// the gateway call did not produce usable content.
type UpstreamError struct {
	Kind   ErrorKind
	Status int
	Model  string
	Msg    string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s error for model %s (status %d): %s", e.Kind, e.Model, e.Status, e.Msg)
	}
	return fmt.Sprintf("upstream %s error for model %s: %s", e.Kind, e.Model, e.Msg)
}

func newTransient(model string, status int, msg string) *UpstreamError {
	return &UpstreamError{Kind: KindTransient, Status: status, Model: model, Msg: msg}
}

func newPermanent(model string, status int, msg string) *UpstreamError {
	return &UpstreamError{Kind: KindPermanent, Status: status, Model: model, Msg: msg}
}

func newTimeout(model string, msg string) *UpstreamError {
	return &UpstreamError{Kind: KindTimeout, Model: model, Msg: msg}
}

func newCancelled(model string) *UpstreamError {
	return &UpstreamError{Kind: KindCancelled, Model: model, Msg: "request cancelled"}
}

// retryable reports whether an error kind should be retried by
// completeBlocking per spec: transient errors, or any status >= 500.
func (e *UpstreamError) retryable() bool {
	if e.Kind == KindTransient {
		return true
	}
	if e.Status >= 500 {
		return true
	}
	return false
}
