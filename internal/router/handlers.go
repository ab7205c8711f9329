package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tgrelay/internal/scheduler"
	"tgrelay/pkg/gateway"
)

// Handle executes one queued task. It is the worker pool's handler.
func (r *Router) Handle(ctx context.Context, t *scheduler.Task) error {
	switch task := t.Payload.(type) {
	case RelayToAdmin:
		return r.relayToAdmin(ctx, task)
	case SubmitRequest:
		return r.forwardRequest(ctx, task)
	case ReplyToUser:
		return r.replyToUser(ctx, task)
	case ResolveInteraction:
		return r.resolveInteraction(ctx, task)
	case Notice:
		if _, err := r.sender.Send(ctx, task.ChatID, task.Text, gateway.SendOptions{}); err != nil {
			return fmt.Errorf("send notice to %d: %w", task.ChatID, err)
		}
		return nil
	case Acknowledge:
		if err := r.sender.AnswerInteraction(ctx, task.InteractionID, task.Text); err != nil {
			return fmt.Errorf("answer interaction %s: %w", task.InteractionID, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown task payload %T", t.Payload)
	}
}

func formatRouted(title string, origin gateway.UserIdentity, at time.Time, text string) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n👤 From: ")
	sb.WriteString(origin.DisplayName)
	sb.WriteString("\n🆔 ID: ")
	sb.WriteString(strconv.FormatInt(origin.ID, 10))
	sb.WriteString("\n📅 Time: ")
	sb.WriteString(at.Format(timeLayout))
	sb.WriteString("\n")
	sb.WriteString(separator)
	sb.WriteString("\n")
	sb.WriteString(text)
	return sb.String()
}

func requestControls(messageID int64) []gateway.Control {
	id := strconv.FormatInt(messageID, 10)
	return []gateway.Control{
		{Label: "✅ Accept", Data: "accept_" + id},
		{Label: "❌ Reject", Data: "reject_" + id},
		{Label: "✔️ Complete", Data: "complete_" + id},
	}
}

func (r *Router) relayToAdmin(ctx context.Context, t RelayToAdmin) error {
	text := formatRouted("💬 New message", t.Origin, t.ReceivedAt, t.Text)
	id, err := r.sender.Send(ctx, r.adminID, text, gateway.SendOptions{})
	if err != nil {
		return fmt.Errorf("relay message from %d: %w", t.Origin.ID, err)
	}
	r.identities.Record(id, t.Origin)
	r.log.Info().Int64("user_id", t.Origin.ID).Int64("message_id", id).Msg("message relayed")
	return nil
}

func (r *Router) forwardRequest(ctx context.Context, t SubmitRequest) error {
	text := formatRouted("📨 New request", t.Origin, t.ReceivedAt, t.Text)
	id, err := r.sender.Send(ctx, r.adminID, text, gateway.SendOptions{Controls: requestControls(t.MessageID)})
	if err != nil {
		return fmt.Errorf("relay request from %d: %w", t.Origin.ID, err)
	}
	r.identities.Record(id, t.Origin)
	r.log.Info().Int64("user_id", t.Origin.ID).Int64("message_id", id).Msg("request relayed")

	if _, err := r.sender.Send(ctx, t.ChatID, requestSentText, gateway.SendOptions{}); err != nil {
		return fmt.Errorf("confirm request to %d: %w", t.Origin.ID, err)
	}
	return nil
}

func (r *Router) replyToUser(ctx context.Context, t ReplyToUser) error {
	_, sendErr := r.sender.Send(ctx, t.Target.ID, replyHeader+t.Text, gateway.SendOptions{})

	outcome := deliveredText
	if sendErr != nil {
		outcome = deliveryFailedText
	}
	if _, err := r.sender.Send(ctx, r.adminID, outcome, gateway.SendOptions{}); err != nil {
		r.log.Warn().Err(err).Msg("notify admin of delivery outcome failed")
	}

	if sendErr != nil {
		return fmt.Errorf("reply to user %d: %w", t.Target.ID, sendErr)
	}
	r.log.Info().Int64("user_id", t.Target.ID).Msg("reply delivered")
	return nil
}

// resolveInteraction notifies the user first; the administrator's message
// is only marked once the user actually got the status.
func (r *Router) resolveInteraction(ctx context.Context, t ResolveInteraction) error {
	log := r.log.With().Str("interaction_id", t.InteractionID).Str("action", t.Status.Action).Int64("user_id", t.Origin.ID).Logger()

	if _, err := r.sender.Send(ctx, t.Origin.ID, t.Status.UserNotice, gateway.SendOptions{}); err != nil {
		if ackErr := r.sender.AnswerInteraction(ctx, t.InteractionID, ackNotifyFailed); ackErr != nil {
			log.Warn().Err(ackErr).Msg("answer interaction failed")
		}
		return fmt.Errorf("notify user %d of %s: %w", t.Origin.ID, t.Status.Action, err)
	}

	ack := ackDone
	updated := t.AdminMessageText + "\n\n📌 Status: " + t.Status.Label
	if err := r.sender.EditText(ctx, r.adminID, t.AdminMessageID, updated); err != nil {
		log.Warn().Err(err).Msg("update admin message failed")
		ack = ackDoneNoEdit
	}

	if err := r.sender.AnswerInteraction(ctx, t.InteractionID, ack); err != nil {
		return fmt.Errorf("answer interaction %s: %w", t.InteractionID, err)
	}
	log.Info().Msg("request status updated")
	return nil
}
