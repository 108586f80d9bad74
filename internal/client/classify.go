package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind classifies an upstream transport failure.
type Kind string

const (
	KindSocketTimeout     Kind = "socket-timeout"
	KindTimeout           Kind = "timeout"
	KindConnectionReset   Kind = "connection-reset"
	KindConnectionRefused Kind = "connection-refused"
	KindCanceled          Kind = "canceled"
	KindOther             Kind = "other"
)

// Retryable reports whether a failure of this kind is worth one more attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindSocketTimeout, KindTimeout, KindConnectionReset, KindConnectionRefused:
		return true
	}
	return false
}

// UpstreamError is returned by Forward once no further attempt will be made.
type UpstreamError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// errHeaderTimeout is the cancel cause used when response headers do not
// arrive within the target timeout.
var errHeaderTimeout = errors.New("upstream response header timeout")

// classify maps a failed attempt to a Kind. parent is the caller's context;
// attempt is the per-attempt context whose cause records a header timeout.
func classify(parent, attempt context.Context, err error) Kind {
	if parent.Err() != nil {
		return KindCanceled
	}
	if errors.Is(context.Cause(attempt), errHeaderTimeout) || errors.Is(err, errHeaderTimeout) {
		return KindTimeout
	}

	switch {
	case errors.Is(err, syscall.ETIMEDOUT):
		return KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnectionReset
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindSocketTimeout
	}
	return KindOther
}
