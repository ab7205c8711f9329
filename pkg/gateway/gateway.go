// Package gateway defines the contract between the relay core and the
// messaging platform client: outbound calls, the inbound event stream and
// the error taxonomy used to decide whether a failed call is retried.
package gateway

import (
	"context"
	"strings"
)

// UserIdentity identifies the person behind an inbound event.
// It is captured once from the event and never mutated.
type UserIdentity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
}

// DisplayName builds the name shown to the administrator:
// "@username" when the user has one, otherwise "First Last".
func DisplayName(username, firstName, lastName string) string {
	if u := strings.TrimSpace(username); u != "" {
		return "@" + u
	}
	name := strings.TrimSpace(firstName)
	if last := strings.TrimSpace(lastName); last != "" {
		if name != "" {
			name += " "
		}
		name += last
	}
	return name
}

// Control is an interactive button attached to an outbound message.
type Control struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// SendOptions holds optional settings for an outbound message.
type SendOptions struct {
	// Controls are rendered as a single row of buttons.
	Controls []Control
	// ReplyTo quotes an earlier message in the same chat (0 = none).
	ReplyTo int64
}

// Sender is the outbound half of the platform client.
type Sender interface {
	// Send delivers text to chatID and returns the platform message id.
	Send(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error)

	// EditText replaces the text of an existing message.
	EditText(ctx context.Context, chatID, messageID int64, text string) error

	// AnswerInteraction acknowledges a button press with a short notice.
	AnswerInteraction(ctx context.Context, interactionID, notice string) error
}

// Source is the inbound half of the platform client. Poll blocks until
// at least one event is available, the long-poll times out (nil, nil),
// or ctx is cancelled.
type Source interface {
	Poll(ctx context.Context) ([]Event, error)
}

// Gateway is a full platform client.
type Gateway interface {
	Sender
	Source
}
