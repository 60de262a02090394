// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/morganforge/inkwell/internal/cloud"
	"github.com/morganforge/inkwell/internal/ollama"
)

// =============================================================================
// OUTCOME TAXONOMY
// =============================================================================

// ErrorKind classifies how a session failed. Clients branch on the kind,
// never on provider-specific error types.
type ErrorKind int

const (
	// KindUnknown covers failures no other kind matches.
	KindUnknown ErrorKind = iota
	// KindConnection means the provider endpoint was unreachable.
	KindConnection
	// KindAuth means the credential was missing or rejected.
	KindAuth
	// KindRateLimited means the provider throttled the request.
	KindRateLimited
	// KindTimeout means the channel's time budget was exceeded.
	KindTimeout
	// KindMalformed means the stream could not be parsed.
	KindMalformed
	// KindModelNotFound means the requested model does not exist.
	KindModelNotFound
	// KindCancelled is a normal supersession or dismiss outcome, not a
	// user-visible error.
	KindCancelled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate-limited"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	case KindModelNotFound:
		return "model-not-found"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SessionError is the typed outcome of a failed session.
type SessionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying provider error.
func (e *SessionError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a short human-readable description suitable for
// an error banner or a chat inline message.
func (e *SessionError) UserMessage() string {
	switch e.Kind {
	case KindConnection:
		return "Cannot reach the model server. Is Ollama running?"
	case KindAuth:
		return "API key missing or rejected. Check your configuration."
	case KindRateLimited:
		return "Rate limited by the provider. Try again shortly."
	case KindTimeout:
		return "The model took too long to respond."
	case KindMalformed:
		return "The model returned an unreadable response."
	case KindModelNotFound:
		return "The requested model is not available."
	case KindCancelled:
		return "Cancelled."
	default:
		return "The request failed: " + e.Message
	}
}

// Classify maps a provider or context error onto a SessionError.
// Cancellation maps to KindCancelled so callers can drop it silently.
func Classify(err error) *SessionError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return &SessionError{Kind: KindCancelled, Message: "session cancelled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded), ollama.IsTimeout(err):
		return &SessionError{Kind: KindTimeout, Message: "session exceeded its time budget", Cause: err}
	case cloud.IsNotConfigured(err), cloud.IsAuthError(err):
		return &SessionError{Kind: KindAuth, Message: "authentication failed", Cause: err}
	case cloud.IsRateLimited(err):
		return &SessionError{Kind: KindRateLimited, Message: "provider rate limit", Cause: err}
	case ollama.IsModelNotFound(err), errors.Is(err, cloud.ErrModelNotFound):
		return &SessionError{Kind: KindModelNotFound, Message: "model not found", Cause: err}
	case ollama.IsNotRunning(err):
		return &SessionError{Kind: KindConnection, Message: "provider unreachable", Cause: err}
	}

	var clientErr *ollama.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case ollama.ErrTypeConnection, ollama.ErrTypeNotRunning:
			return &SessionError{Kind: KindConnection, Message: clientErr.Message, Cause: err}
		case ollama.ErrTypeInvalidResponse:
			return &SessionError{Kind: KindMalformed, Message: clientErr.Message, Cause: err}
		}
	}

	return &SessionError{Kind: KindUnknown, Message: err.Error(), Cause: err}
}
