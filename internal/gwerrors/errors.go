// Package gwerrors defines the gateway's single error taxonomy: a closed
// set of kinds rather than a type per failure. Every error that crosses a
// component boundary is wrapped with a Kind so callers can decide whether
// to recover locally, surface a friendly message, or abort.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy from the design's error handling section.
type Kind string

const (
	Provider      Kind = "provider"
	Channel       Kind = "channel"
	Config        Kind = "config"
	Memory        Kind = "memory"
	Sandbox       Kind = "sandbox"
	IO            Kind = "io"
	Serialization Kind = "serialization"
)

// Error wraps an underlying cause with a Kind and a short context string.
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and context. Returns nil if err is nil.
func New(kind Kind, context string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Fatal marks errors that should abort gateway startup rather than being
// recovered locally or surfaced as a friendly user message: database
// open/migration failure, channel startup failure, missing required
// provider config.
func Fatal(kind Kind, context string, err error) error {
	return New(kind, "fatal: "+context, err)
}

// FriendlyMessages maps the small set of user-facing situations to the
// only text that is ever allowed to reach a chat channel; everything else
// about an internal error stays in the audit log.
var FriendlyMessages = map[string]string{
	"timeout":  "I took too long to respond. Please try again.",
	"generic":  "Something went wrong on my end. Please try again in a moment.",
	"denied":   "I'm not able to respond to you here.",
	"overrun":  "That took longer than I'm allowed to spend — I stopped partway through.",
}
