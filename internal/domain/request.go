// Package domain request.go contains the generation request and its result.
package domain

import "strings"

// Request is a single inbound generation request after decoding.
type Request struct {
	Action         Action
	Prompt         string
	NegativePrompt string // image only
	Token          string // image only; caller-supplied override credential
}

// Validate checks the action first, then the prompt. The order matters:
// an invalid action is reported even when the prompt is also missing.
func (r Request) Validate() error {
	if !r.Action.Valid() {
		return ErrInvalidAction
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrMissingPrompt
	}
	return nil
}

// Result is the payload of a successful generation. Exactly one field is set.
type Result struct {
	Text  string
	Image string // data:<mime>;base64,<payload>
}
