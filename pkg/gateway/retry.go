package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy is a fixed-delay retry policy: up to MaxAttempts tries with
// Delay between them. There is no backoff.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 5 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
	}
}

// ShouldRetry reports whether attempt (1-based, already failed with err)
// may be followed by another one.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// The wait between attempts is cut short when ctx is cancelled.
func (p RetryPolicy) Do(ctx context.Context, log zerolog.Logger, op string, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Msg("gateway call failed")

		if !p.ShouldRetry(attempt, err) {
			return err
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// retryingSender retries Send under a RetryPolicy. EditText and
// AnswerInteraction are single-shot.
type retryingSender struct {
	Sender
	policy RetryPolicy
	log    zerolog.Logger
}

// WithRetry wraps s so that Send is retried according to policy.
func WithRetry(s Sender, policy RetryPolicy, log zerolog.Logger) Sender {
	return &retryingSender{Sender: s, policy: policy, log: log}
}

func (r *retryingSender) Send(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error) {
	var id int64
	err := r.policy.Do(ctx, r.log.With().Int64("chat_id", chatID).Logger(), "send", func(ctx context.Context) error {
		var err error
		id, err = r.Sender.Send(ctx, chatID, text, opts)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
