// Package domain action.go contains the supported request actions.
package domain

import "strings"

// Action selects which upstream family serves a request.
type Action string

const (
	// ActionDeck generates presentation text through the chat-completion provider.
	ActionDeck Action = "deck"
	// ActionImage generates an image through the diffusion providers.
	ActionImage Action = "image"
)

// ParseAction validates s and returns it as an Action.
// Returns ErrInvalidAction for anything other than "deck" or "image".
func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	if !a.Valid() {
		return "", ErrInvalidAction
	}
	return a, nil
}

// Valid reports whether the action is one of the supported values.
func (a Action) Valid() bool {
	return a == ActionDeck || a == ActionImage
}

// String returns the string form of the Action.
func (a Action) String() string { return string(a) }
