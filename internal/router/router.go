// Package router turns inbound gateway events into queued relay tasks and
// executes those tasks on behalf of the worker pool.
package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tgrelay/internal/bans"
	"tgrelay/internal/scheduler"
	"tgrelay/internal/session"
	"tgrelay/pkg/gateway"
	"tgrelay/pkg/logger"
)

// DefaultPollErrorDelay is the pause after a failed poll.
const DefaultPollErrorDelay = 5 * time.Second

// Deps collects the router's collaborators.
type Deps struct {
	AdminID int64

	// Sender is used by the task handlers. Wrap it with gateway.WithRetry
	// for retried sends.
	Sender gateway.Sender

	Queue      *scheduler.Queue
	Identities *session.IdentityMap
	Bans       *bans.Registry
	Limiter    *session.RateLimiter
	Dedup      *session.Deduplicator

	// PollErrorDelay is the wait after a failed poll before the next one.
	PollErrorDelay time.Duration

	// Now defaults to time.Now.
	Now session.Clock

	Logger zerolog.Logger
}

// Router validates inbound events against the ban list, the rate limiter
// and the interaction deduplicator, and queues the resulting tasks. Every
// outbound gateway call happens in Handle, on a worker.
type Router struct {
	adminID    int64
	sender     gateway.Sender
	queue      *scheduler.Queue
	identities *session.IdentityMap
	bans       *bans.Registry
	limiter    *session.RateLimiter
	dedup      *session.Deduplicator
	pollDelay  time.Duration
	now        session.Clock
	log        zerolog.Logger
}

// New creates a router.
func New(d Deps) *Router {
	if d.PollErrorDelay <= 0 {
		d.PollErrorDelay = DefaultPollErrorDelay
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Router{
		adminID:    d.AdminID,
		sender:     d.Sender,
		queue:      d.Queue,
		identities: d.Identities,
		bans:       d.Bans,
		limiter:    d.Limiter,
		dedup:      d.Dedup,
		pollDelay:  d.PollErrorDelay,
		now:        d.Now,
		log:        logger.Component(d.Logger, "router"),
	}
}

// Run polls src and dispatches every event until ctx is cancelled. Poll
// errors are logged and retried after the poll error delay.
func (r *Router) Run(ctx context.Context, src gateway.Source) error {
	r.log.Info().Int64("admin_id", r.adminID).Msg("router started")
	defer r.log.Info().Msg("router stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		events, err := src.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn().Err(err).Dur("retry_in", r.pollDelay).Msg("poll failed")

			timer := time.NewTimer(r.pollDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}

		for _, ev := range events {
			if err := r.Dispatch(ev); err != nil {
				r.log.Error().Err(err).Str("kind", string(ev.Kind())).Int64("user_id", ev.Sender().ID).Msg("dispatch failed")
			}
		}
	}
}

// Dispatch handles one inbound event. The only errors returned are queue
// failures; rejected events are logged and answered, not returned.
func (r *Router) Dispatch(ev gateway.Event) error {
	switch e := ev.(type) {
	case gateway.Command:
		return r.onCommand(e)
	case gateway.Message:
		return r.onMessage(e)
	case gateway.Interaction:
		return r.onInteraction(e)
	default:
		r.log.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("unsupported event")
		return nil
	}
}

func (r *Router) isAdmin(chatID int64) bool {
	return chatID == r.adminID
}

func (r *Router) enqueue(t Task) error {
	if err := r.queue.Push(scheduler.NewTask(t.taskName(), t)); err != nil {
		return fmt.Errorf("enqueue %s: %w", t.taskName(), err)
	}
	return nil
}

func (r *Router) notice(chatID int64, text string) error {
	return r.enqueue(Notice{ChatID: chatID, Text: text})
}

func (r *Router) ack(interactionID, text string) error {
	return r.enqueue(Acknowledge{InteractionID: interactionID, Text: text})
}

func (r *Router) onCommand(c gateway.Command) error {
	log := r.log.With().Str("command", c.Name).Int64("user_id", c.From.ID).Logger()

	if r.bans.IsBanned(c.From.ID) {
		log.Info().Msg("command from banned user dropped")
		return nil
	}

	admin := r.isAdmin(c.ChatID)
	var err error
	switch c.Name {
	case "start", "help":
		err = r.notice(c.ChatID, r.usage(admin))
	case "status":
		err = r.notice(c.ChatID, r.statusText(admin))
	case "req":
		err = r.submitRequest(c, admin)
	case "ban", "unban", "bans":
		if !admin {
			log.Warn().Int64("chat_id", c.ChatID).Msg("admin command from non-admin chat dropped")
			return nil
		}
		err = r.adminCommand(c)
	default:
		err = r.notice(c.ChatID, unknownCommandText+r.usage(admin))
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		log.Info().Str("args", c.Args).Msg("invalid command arguments")
		return r.notice(c.ChatID, ve.Usage)
	}
	return err
}

func (r *Router) usage(admin bool) string {
	if admin {
		return userUsage + adminUsage
	}
	return userUsage
}

func (r *Router) statusText(admin bool) string {
	if !admin {
		return runningText
	}
	var sb strings.Builder
	sb.WriteString(runningText)
	fmt.Fprintf(&sb, "\n📊 Routed messages: %d", r.identities.Len())
	fmt.Fprintf(&sb, "\n🚫 Banned users: %d", r.bans.Len())
	fmt.Fprintf(&sb, "\n📥 Queued tasks: %d", r.queue.Len())
	return sb.String()
}

func (r *Router) submitRequest(c gateway.Command, admin bool) error {
	if admin {
		r.log.Debug().Msg("request from admin chat ignored")
		return nil
	}

	text := strings.TrimSpace(c.Args)
	if text == "" {
		return &ValidationError{Command: "req", Usage: requestUsage}
	}

	now := r.now()
	if !r.limiter.TryAdmit(c.From.ID, now) {
		r.log.Debug().Int64("user_id", c.From.ID).Msg("request rate limited")
		return r.notice(c.ChatID, slowDownText)
	}

	return r.enqueue(SubmitRequest{
		Origin:     c.From,
		ChatID:     c.ChatID,
		MessageID:  c.MessageID,
		Text:       text,
		ReceivedAt: now,
	})
}

// adminCommand runs ban, unban and bans. Ban list mutations happen here on
// the ingestion path so they apply in the order the administrator sent them.
func (r *Router) adminCommand(c gateway.Command) error {
	switch c.Name {
	case "ban":
		if c.ReplyToMessageID == 0 {
			return &ValidationError{Command: "ban", Usage: banUsage}
		}
		user, err := r.identities.Resolve(c.ReplyToMessageID)
		if errors.Is(err, session.ErrNotFound) {
			r.log.Info().Int64("message_id", c.ReplyToMessageID).Msg("ban target not found")
			return r.notice(c.ChatID, expiredText)
		}
		if user.ID == r.adminID {
			return &ValidationError{Command: "ban", Usage: banAdminUsage}
		}
		if err := r.bans.Ban(user.ID); err != nil {
			return r.notice(c.ChatID, fmt.Sprintf("⚠️ User %d banned, but saving the ban list failed: %v", user.ID, err))
		}
		return r.notice(c.ChatID, fmt.Sprintf("🚫 Banned %s (%d)", user.DisplayName, user.ID))

	case "unban":
		id, err := strconv.ParseInt(strings.TrimSpace(c.Args), 10, 64)
		if err != nil {
			return &ValidationError{Command: "unban", Usage: unbanUsage}
		}
		if err := r.bans.Unban(id); err != nil {
			return r.notice(c.ChatID, fmt.Sprintf("⚠️ User %d unbanned, but saving the ban list failed: %v", id, err))
		}
		return r.notice(c.ChatID, fmt.Sprintf("✅ Unbanned %d", id))

	default:
		return r.notice(c.ChatID, formatBanList(r.bans.List()))
	}
}

func formatBanList(ids []int64) string {
	if len(ids) == 0 {
		return noBansText
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚫 Banned users (%d):", len(ids))
	for _, id := range ids {
		sb.WriteString("\n")
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	return sb.String()
}

func (r *Router) onMessage(m gateway.Message) error {
	if strings.TrimSpace(m.Text) == "" {
		return nil
	}

	if r.isAdmin(m.ChatID) {
		if !m.IsReply() {
			r.log.Debug().Msg("admin message without reply ignored")
			return nil
		}
		user, err := r.identities.Resolve(m.ReplyToMessageID)
		if errors.Is(err, session.ErrNotFound) {
			r.log.Info().Int64("message_id", m.ReplyToMessageID).Msg("reply target not found")
			return r.notice(m.ChatID, expiredText)
		}
		return r.enqueue(ReplyToUser{Target: user, Text: m.Text})
	}

	if r.bans.IsBanned(m.From.ID) {
		r.log.Info().Int64("user_id", m.From.ID).Msg("message from banned user suppressed")
		return nil
	}

	now := r.now()
	if !r.limiter.TryAdmit(m.From.ID, now) {
		r.log.Debug().Int64("user_id", m.From.ID).Msg("message rate limited")
		return r.notice(m.ChatID, slowDownText)
	}

	return r.enqueue(RelayToAdmin{Origin: m.From, Text: m.Text, ReceivedAt: now})
}

func (r *Router) onInteraction(i gateway.Interaction) error {
	log := r.log.With().Str("interaction_id", i.ID).Str("data", i.Data).Logger()

	if !r.isAdmin(i.ChatID) {
		log.Warn().Int64("chat_id", i.ChatID).Msg("interaction from non-admin chat")
		return r.ack(i.ID, ackNotAuthorized)
	}

	if !r.dedup.TryClaim(i.ID, r.now()) {
		log.Info().Msg("duplicate interaction")
		return r.ack(i.ID, ackAlreadyHandled)
	}

	origin, err := r.identities.Resolve(i.OriginatingMessageID)
	if errors.Is(err, session.ErrNotFound) {
		log.Info().Int64("message_id", i.OriginatingMessageID).Msg("interaction target expired")
		return r.ack(i.ID, ackExpired)
	}

	status, ok := StatusFor(i.Action())
	if !ok {
		log.Warn().Msg("unknown interaction action")
		return r.ack(i.ID, ackUnknownAction)
	}

	return r.enqueue(ResolveInteraction{
		InteractionID:    i.ID,
		Origin:           origin,
		Status:           status,
		AdminMessageID:   i.OriginatingMessageID,
		AdminMessageText: i.OriginatingMessageText,
	})
}
