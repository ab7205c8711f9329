package router

import (
	"time"

	"tgrelay/pkg/gateway"
)

// Task is the unit of work queued by the router and executed by a worker.
// The concrete type is one of the structs below.
type Task interface {
	taskName() string
}

// RelayToAdmin forwards a plain user message to the administrator.
type RelayToAdmin struct {
	Origin     gateway.UserIdentity
	Text       string
	ReceivedAt time.Time
}

// SubmitRequest forwards a /req request with accept/reject/complete controls
// and confirms receipt to the user.
type SubmitRequest struct {
	Origin     gateway.UserIdentity
	ChatID     int64
	MessageID  int64
	Text       string
	ReceivedAt time.Time
}

// ReplyToUser delivers an administrator reply to the user it resolves to.
type ReplyToUser struct {
	Target gateway.UserIdentity
	Text   string
}

// ResolveInteraction notifies the user of a request status chosen by the
// administrator and marks the administrator's copy of the request.
type ResolveInteraction struct {
	InteractionID    string
	Origin           gateway.UserIdentity
	Status           Status
	AdminMessageID   int64
	AdminMessageText string
}

// Notice sends a short informational text to a chat.
type Notice struct {
	ChatID int64
	Text   string
}

// Acknowledge answers an interaction without any other side effect.
type Acknowledge struct {
	InteractionID string
	Text          string
}

func (RelayToAdmin) taskName() string       { return "relay_to_admin" }
func (SubmitRequest) taskName() string      { return "submit_request" }
func (ReplyToUser) taskName() string        { return "reply_to_user" }
func (ResolveInteraction) taskName() string { return "resolve_interaction" }
func (Notice) taskName() string             { return "notice" }
func (Acknowledge) taskName() string        { return "acknowledge" }

// Status is the outcome the administrator picked for a request.
type Status struct {
	Action     string
	Label      string
	UserNotice string
}

var statuses = map[string]Status{
	"accept": {
		Action:     "accept",
		Label:      "✅ Accepted",
		UserNotice: "✅ Your request has been accepted.\n\nThe administrator is working on it, please wait.",
	},
	"reject": {
		Action:     "reject",
		Label:      "❌ Rejected",
		UserNotice: "❌ Your request has been rejected.\n\nIf you have questions, please resubmit it with more details.",
	},
	"complete": {
		Action:     "complete",
		Label:      "✔️ Completed",
		UserNotice: "✔️ Your request has been completed.\n\nThank you for your patience!",
	},
}

// StatusFor maps an interaction action tag to its status.
func StatusFor(action string) (Status, bool) {
	s, ok := statuses[action]
	return s, ok
}
