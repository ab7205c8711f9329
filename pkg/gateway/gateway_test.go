package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "@alice", DisplayName("alice", "Alice", "Liddell"))
	assert.Equal(t, "Alice Liddell", DisplayName("", "Alice", "Liddell"))
	assert.Equal(t, "Alice", DisplayName("", "Alice", ""))
	assert.Equal(t, "Liddell", DisplayName("", "", "Liddell"))
	assert.Equal(t, "", DisplayName(" ", "", ""))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/req need help", "req", "need help", true},
		{"/REQ  need help  ", "req", "need help", true},
		{"/start@relay_bot", "start", "", true},
		{"/unban@relay_bot 42", "unban", "42", true},
		{"/req\nneed help", "req", "need help", true},
		{"/req\tneed\nmore help", "req", "need\nmore help", true},
		{"/ban@relay_bot\n42", "ban", "42", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestInteractionAction(t *testing.T) {
	assert.Equal(t, "accept", Interaction{Data: "accept_17"}.Action())
	assert.Equal(t, "complete", Interaction{Data: "complete_"}.Action())
	assert.Equal(t, "", Interaction{Data: "accept"}.Action())
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("boom")

	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(base), "unclassified errors are transient")
	assert.True(t, IsRetryable(Transient("send", base)))
	assert.False(t, IsRetryable(Permanent("send", base)))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsPermanent(Permanent("edit", base)))
	assert.False(t, IsPermanent(Transient("edit", base)))
	assert.ErrorIs(t, Permanent("edit", base), base)
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return 100 + int64(f.calls), nil
}

func (f *fakeSender) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return nil
}

func (f *fakeSender) AnswerInteraction(ctx context.Context, interactionID, notice string) error {
	return nil
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	fs := &fakeSender{errs: []error{Transient("send", errors.New("timeout")), Transient("send", errors.New("timeout"))}}
	s := WithRetry(fs, RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, zerolog.Nop())

	id, err := s.Send(context.Background(), 1, "hi", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(103), id)
	assert.Equal(t, 3, fs.calls)
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	fail := Transient("send", errors.New("timeout"))
	fs := &fakeSender{errs: []error{fail, fail, fail, fail}}
	s := WithRetry(fs, RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, zerolog.Nop())

	_, err := s.Send(context.Background(), 1, "hi", SendOptions{})
	require.Error(t, err)
	assert.Equal(t, 3, fs.calls)
}

func TestWithRetry_PermanentNotRetried(t *testing.T) {
	fs := &fakeSender{errs: []error{Permanent("send", errors.New("blocked"))}}
	s := WithRetry(fs, RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, zerolog.Nop())

	_, err := s.Send(context.Background(), 1, "hi", SendOptions{})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, fs.calls)
}

func TestRetryPolicy_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, zerolog.Nop(), "send", func(context.Context) error {
			calls++
			return errors.New("timeout")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.Delay)
}
