// Package domain outcome.go contains the typed result of one upstream attempt.
package domain

import "fmt"

// OutcomeKind tags an attempt outcome.
type OutcomeKind int

const (
	// OutcomeSuccess means the attempt produced a usable payload.
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeRetryable means the same key may be tried again after a delay.
	OutcomeRetryable
	// OutcomePermanent means the key is done for this request.
	OutcomePermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single (key, provider) attempt.
type Outcome struct {
	Kind    OutcomeKind
	Payload string // set on success
	Status  int    // upstream HTTP status, 0 when no response was received
	Reason  string // short description for logs, never contains key material
}

// Success builds a successful outcome.
func Success(payload string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Payload: payload}
}

// Retryable builds a retryable failure.
func Retryable(status int, reason string) Outcome {
	return Outcome{Kind: OutcomeRetryable, Status: status, Reason: reason}
}

// Permanent builds a permanent failure.
func Permanent(status int, reason string) Outcome {
	return Outcome{Kind: OutcomePermanent, Status: status, Reason: reason}
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

func (o Outcome) String() string {
	if o.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", o.Kind, o.Status, o.Reason)
	}
	if o.Reason != "" {
		return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
	}
	return o.Kind.String()
}
