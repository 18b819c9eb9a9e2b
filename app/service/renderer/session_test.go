package renderer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"companion/app/client/companion"
	"companion/app/service/conversation"
	"companion/app/service/gateway"
	"companion/app/service/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.stopped.Store(true)
}

// tick blocks until the reveal loop takes the tick.
func (t *manualTicker) tick(tb testing.TB) {
	select {
	case t.ch <- time.Now():
	case <-time.After(waitFor):
		tb.Fatal("reveal loop did not take the tick")
	}
}

type fakeClient struct {
	mu    sync.Mutex
	calls [][]conversation.Turn
	reply *gateway.Response
	err   error
	gate  chan struct{}
}

func (c *fakeClient) Chat(ctx context.Context, turns []conversation.Turn) (*gateway.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, turns)
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}

	return c.reply, c.err
}

func (c *fakeClient) lastCall() []conversation.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[len(c.calls)-1]
}

type harness struct {
	session *Session
	store   history.Store
	client  *fakeClient
	tickers chan *manualTicker
}

func newHarness(t *testing.T, client *fakeClient, saved ...history.Message) *harness {
	ctx := context.Background()

	store, err := history.NewStore(history.DriverMemory)
	require.NoError(t, err)
	if len(saved) > 0 {
		require.NoError(t, store.Save(ctx, saved))
	}

	tickers := make(chan *manualTicker, 4)
	session, err := NewSession(ctx, client, store,
		WithTicker(func(time.Duration) Ticker {
			tk := &manualTicker{ch: make(chan time.Time)}
			tickers <- tk
			return tk
		}),
	)
	require.NoError(t, err)

	return &harness{
		session: session,
		store:   store,
		client:  client,
		tickers: tickers,
	}
}

func (h *harness) nextTicker(t *testing.T) *manualTicker {
	select {
	case tk := <-h.tickers:
		return tk
	case <-time.After(waitFor):
		t.Fatal("reveal did not start")
		return nil
	}
}

func (h *harness) waitIdle(t *testing.T) {
	select {
	case <-h.session.Done():
	case <-time.After(waitFor):
		t.Fatal("exchange did not finish")
	}
}

func (h *harness) saved(t *testing.T) []history.Message {
	msgs, err := h.store.Load(context.Background())
	require.NoError(t, err)
	return msgs
}

func reply(text string) *fakeClient {
	return &fakeClient{reply: &gateway.Response{Result: text}}
}

func TestRevealOneRunePerTick(t *testing.T) {
	h := newHarness(t, reply("Hé!"))

	require.NoError(t, h.session.Send(context.Background(), "hi"))
	tk := h.nextTicker(t)

	assert.Equal(t, StateRevealing, h.session.State())
	assert.Equal(t, []history.Message{
		{Sender: history.SenderUser, Text: "hi"},
		{Sender: history.SenderBot, Text: ""},
	}, h.session.Messages())

	tk.tick(t)
	tk.tick(t)
	require.Eventually(t, func() bool {
		return h.session.Messages()[1].Text == "Hé"
	}, waitFor, time.Millisecond)
	assert.Equal(t, "Hé", h.saved(t)[1].Text)

	tk.tick(t)
	h.waitIdle(t)

	assert.Equal(t, StateIdle, h.session.State())
	assert.True(t, tk.stopped.Load())
	assert.Equal(t, "Hé!", h.session.Messages()[1].Text)
	assert.Equal(t, h.session.Messages(), h.saved(t))
}

func TestCancelKeepsPartialText(t *testing.T) {
	h := newHarness(t, reply("Hello there"))

	require.NoError(t, h.session.Send(context.Background(), "hi"))
	tk := h.nextTicker(t)

	tk.tick(t)
	tk.tick(t)
	require.Eventually(t, func() bool {
		return h.session.Messages()[1].Text == "He"
	}, waitFor, time.Millisecond)

	assert.True(t, h.session.Cancel())
	h.waitIdle(t)

	assert.Equal(t, StateIdle, h.session.State())
	assert.True(t, tk.stopped.Load())
	assert.Equal(t, "He", h.session.Messages()[1].Text)
	assert.Equal(t, "He", h.saved(t)[1].Text)

	select {
	case tk.ch <- time.Now():
		t.Fatal("reveal kept ticking after cancel")
	case <-time.After(50 * time.Millisecond):
	}

	assert.False(t, h.session.Cancel())
}

func TestCancelBeforeFirstTick(t *testing.T) {
	h := newHarness(t, reply("Hello"))

	require.NoError(t, h.session.Send(context.Background(), "hi"))
	h.nextTicker(t)

	assert.True(t, h.session.Cancel())
	assert.Equal(t, "", h.session.Messages()[1].Text)
}

func TestSendWhileBusy(t *testing.T) {
	client := reply("ok")
	client.gate = make(chan struct{})
	h := newHarness(t, client)

	require.NoError(t, h.session.Send(context.Background(), "first"))
	assert.Equal(t, StateSending, h.session.State())
	assert.ErrorIs(t, h.session.Send(context.Background(), "second"), ErrBusy)
	assert.ErrorIs(t, h.session.Clear(context.Background()), ErrBusy)
	assert.False(t, h.session.Cancel())

	close(client.gate)
	tk := h.nextTicker(t)

	assert.ErrorIs(t, h.session.Send(context.Background(), "third"), ErrBusy)

	tk.tick(t)
	tk.tick(t)
	h.waitIdle(t)

	require.NoError(t, h.session.Send(context.Background(), "fourth"))
	h.nextTicker(t)
	assert.True(t, h.session.Cancel())

	assert.Len(t, client.calls, 2)
}

func TestSendRejectsBlankText(t *testing.T) {
	h := newHarness(t, reply("ok"))

	assert.ErrorIs(t, h.session.Send(context.Background(), "  \n"), ErrEmptyMessage)
	assert.Empty(t, h.session.Messages())
}

func TestFailureMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "transport",
			err:  fmt.Errorf("post chat: %w", companion.ErrTransport),
			want: "Error",
		},
		{
			name: "server message",
			err:  &companion.ServerError{Status: http.StatusTooManyRequests, Message: "Rate limit exceeded. Please wait a minute."},
			want: "Rate limit exceeded. Please wait a minute.",
		},
		{
			name: "server without message",
			err:  &companion.ServerError{Status: http.StatusBadGateway},
			want: "No response",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, &fakeClient{err: tc.err})

			require.NoError(t, h.session.Send(context.Background(), "hi"))
			h.waitIdle(t)

			want := []history.Message{
				{Sender: history.SenderUser, Text: "hi"},
				{Sender: history.SenderBot, Text: tc.want},
			}
			assert.Equal(t, StateIdle, h.session.State())
			assert.Equal(t, want, h.session.Messages())
			assert.Equal(t, want, h.saved(t))
		})
	}
}

func TestEmptyResultRevealsNoResponse(t *testing.T) {
	h := newHarness(t, reply(""))

	require.NoError(t, h.session.Send(context.Background(), "hi"))
	tk := h.nextTicker(t)
	for range []rune(noResponseText) {
		tk.tick(t)
	}
	h.waitIdle(t)

	assert.Equal(t, noResponseText, h.session.Messages()[1].Text)
}

func TestHistoryLoadedAndForwarded(t *testing.T) {
	h := newHarness(t, reply("ok"),
		history.Message{Sender: history.SenderUser, Text: "hi"},
		history.Message{Sender: history.SenderBot, Text: "hello"},
		history.Message{Sender: history.SenderBot, Text: ""},
	)

	assert.Len(t, h.session.Messages(), 3)

	require.NoError(t, h.session.Send(context.Background(), "again"))
	h.nextTicker(t)
	h.session.Cancel()

	assert.Equal(t, []conversation.Turn{
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
		{Role: conversation.RoleUser, Content: "again"},
	}, h.client.lastCall())
}

func TestClear(t *testing.T) {
	h := newHarness(t, reply("hello"),
		history.Message{Sender: history.SenderUser, Text: "old"},
	)

	require.NoError(t, h.session.Send(context.Background(), "hi"))
	tk := h.nextTicker(t)
	tk.tick(t)

	require.NoError(t, h.session.Clear(context.Background()))
	h.waitIdle(t)

	assert.Empty(t, h.session.Messages())
	assert.Empty(t, h.saved(t))
	assert.True(t, tk.stopped.Load())
}

func TestListenerSeesEveryChange(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)

	store, err := history.NewStore(history.DriverMemory)
	require.NoError(t, err)

	tickers := make(chan *manualTicker, 1)
	session, err := NewSession(context.Background(), reply("ab"), store,
		WithTicker(func(time.Duration) Ticker {
			tk := &manualTicker{ch: make(chan time.Time)}
			tickers <- tk
			return tk
		}),
		WithListener(func(state State, _ []history.Message) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, state)
		}),
	)
	require.NoError(t, err)

	require.NoError(t, session.Send(context.Background(), "hi"))
	tk := <-tickers
	tk.tick(t)
	tk.tick(t)
	<-session.Done()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 4
	}, waitFor, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateSending, StateRevealing, StateRevealing, StateIdle}, states)
}

func TestSessionContextStopsReveal(t *testing.T) {
	store, err := history.NewStore(history.DriverMemory)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	tickers := make(chan *manualTicker, 1)
	session, err := NewSession(ctx, reply("hello"), store,
		WithTicker(func(time.Duration) Ticker {
			tk := &manualTicker{ch: make(chan time.Time)}
			tickers <- tk
			return tk
		}),
	)
	require.NoError(t, err)

	require.NoError(t, session.Send(context.Background(), "hi"))
	tk := <-tickers

	cancel()

	select {
	case <-session.Done():
	case <-time.After(waitFor):
		t.Fatal("reveal did not stop")
	}
	assert.True(t, tk.stopped.Load())
	assert.Equal(t, StateIdle, session.State())
}
