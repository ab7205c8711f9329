package gateway

import (
	"strings"
	"unicode"
)

// EventKind is the kind of an inbound event.
type EventKind string

const (
	KindCommand     EventKind = "command"
	KindMessage     EventKind = "message"
	KindInteraction EventKind = "interaction"
)

// Event is one inbound platform event. The concrete type is one of
// Command, Message or Interaction.
type Event interface {
	Kind() EventKind
	Sender() UserIdentity
}

// Command is a slash command such as "/req need help".
type Command struct {
	Name             string       `json:"name"`
	Args             string       `json:"args"`
	ChatID           int64        `json:"chatId"`
	From             UserIdentity `json:"from"`
	RawText          string       `json:"rawText"`
	MessageID        int64        `json:"messageId"`
	ReplyToMessageID int64        `json:"replyToMessageId,omitempty"`
}

// Message is a plain text message.
type Message struct {
	ChatID           int64        `json:"chatId"`
	From             UserIdentity `json:"from"`
	Text             string       `json:"text"`
	MessageID        int64        `json:"messageId"`
	ReplyToMessageID int64        `json:"replyToMessageId,omitempty"`
}

// Interaction is a press on a control attached to an earlier message.
type Interaction struct {
	ID                     string       `json:"id"`
	From                   UserIdentity `json:"from"`
	ChatID                 int64        `json:"chatId"`
	Data                   string       `json:"data"`
	OriginatingMessageID   int64        `json:"originatingMessageId"`
	OriginatingMessageText string       `json:"originatingMessageText"`
}

func (Command) Kind() EventKind     { return KindCommand }
func (Message) Kind() EventKind     { return KindMessage }
func (Interaction) Kind() EventKind { return KindInteraction }

func (c Command) Sender() UserIdentity     { return c.From }
func (m Message) Sender() UserIdentity     { return m.From }
func (i Interaction) Sender() UserIdentity { return i.From }

// IsReply reports whether the message quotes an earlier message.
func (m Message) IsReply() bool {
	return m.ReplyToMessageID != 0
}

// Action returns the action tag of the interaction data, the part before
// the first '_' ("accept_17" -> "accept"). Data without '_' has no action.
func (i Interaction) Action() string {
	action, _, ok := strings.Cut(i.Data, "_")
	if !ok {
		return ""
	}
	return action
}

// ParseCommand splits "/name@bot args" into name and args. The name ends at
// the first whitespace rune.
// ok is false when text is not a command.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
