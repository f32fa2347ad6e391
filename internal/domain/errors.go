// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers.
var (
	ErrInvalidAction     = errors.New("invalid action")
	ErrMissingPrompt     = errors.New("missing prompt")
	ErrConfiguration     = errors.New("configuration error")
	ErrAllKeysExhausted  = errors.New("all keys exhausted")
	ErrMalformedUpstream = errors.New("malformed upstream response")
)
