// Package renderer drives one chat session on the client: it sends the
// transcript to the gateway, reveals the reply one rune per tick and keeps
// the transcript persisted.
package renderer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"companion/app/client/companion"
	"companion/app/service/conversation"
	"companion/app/service/gateway"
	"companion/app/service/history"

	"github.com/samber/oops"
)

const (
	DefaultTickInterval = 20 * time.Millisecond

	transportFailureText = "Error"
	noResponseText       = "No response"
)

type State int

const (
	StateIdle State = iota
	StateSending
	StateRevealing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateRevealing:
		return "revealing"
	default:
		return "unknown"
	}
}

var (
	ErrBusy         = errors.New("an exchange is already in flight")
	ErrEmptyMessage = errors.New("message is empty")
	ErrCancelled    = errors.New("reveal cancelled")
)

type ChatClient interface {
	Chat(ctx context.Context, turns []conversation.Turn) (*gateway.Response, error)
}

// Listener receives a copy of the transcript after every change.
type Listener func(state State, messages []history.Message)

type Option func(*Session)

func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		s.tick = d
	}
}

func WithTicker(factory TickerFactory) Option {
	return func(s *Session) {
		s.newTicker = factory
	}
}

func WithListener(listener Listener) Option {
	return func(s *Session) {
		s.listener = listener
	}
}

type Session struct {
	ctx       context.Context
	client    ChatClient
	store     history.Store
	tick      time.Duration
	newTicker TickerFactory
	listener  Listener

	mu       sync.Mutex
	state    State
	messages []history.Message
	reveal   *reveal
	done     chan struct{}
}

type reveal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	ticker Ticker
	runes  []rune
}

// NewSession restores the saved transcript. ctx bounds every store call
// and reveal of the session.
func NewSession(ctx context.Context, client ChatClient, store history.Store, opts ...Option) (*Session, error) {
	s := &Session{
		ctx:       ctx,
		client:    client,
		store:     store,
		tick:      DefaultTickInterval,
		newTicker: NewTicker,
	}
	for _, opt := range opts {
		opt(s)
	}

	messages, err := store.Load(ctx)
	if err != nil {
		return nil, oops.In("renderer").Wrapf(err, "load history")
	}
	s.messages = messages

	return s, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) Messages() []history.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]history.Message{}, s.messages...)
}

// Done is closed when the current exchange is back to idle.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}

	return s.done
}

// Send appends the user message and starts the exchange in the background.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}

	s.messages = append(s.messages, history.Message{Sender: history.SenderUser, Text: text})
	s.persistLocked()
	s.state = StateSending
	s.done = make(chan struct{})
	turns := s.conversationLocked()
	state, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state, snapshot)

	go s.exchange(ctx, turns)

	return nil
}

// Cancel stops an ongoing reveal and keeps the text revealed so far.
// It reports whether a reveal was stopped.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state != StateRevealing {
		s.mu.Unlock()
		return false
	}

	s.finishLocked(ErrCancelled)
	state, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state, snapshot)

	return true
}

// Clear empties the transcript in memory and in storage, stopping a reveal first.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateSending {
		s.mu.Unlock()
		return ErrBusy
	}

	if s.state == StateRevealing {
		s.finishLocked(ErrCancelled)
	}

	s.messages = []history.Message{}
	if err := s.store.Clear(ctx); err != nil {
		s.mu.Unlock()
		return oops.In("renderer").Wrapf(err, "clear history")
	}

	state, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state, snapshot)

	return nil
}

func (s *Session) exchange(ctx context.Context, turns []conversation.Turn) {
	res, err := s.client.Chat(ctx, turns)

	s.mu.Lock()

	if err != nil {
		slog.Warn("Chat exchange failed",
			slog.Any("error", err),
		)

		s.messages = append(s.messages, history.Message{Sender: history.SenderBot, Text: failureText(err)})
		s.persistLocked()
		s.state = StateIdle
		close(s.done)
		state, snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.notify(state, snapshot)
		return
	}

	text := res.Result
	if text == "" {
		text = noResponseText
	}

	revealCtx, cancel := context.WithCancelCause(s.ctx)
	r := &reveal{
		ctx:    revealCtx,
		cancel: cancel,
		ticker: s.newTicker(s.tick),
		runes:  []rune(text),
	}

	s.messages = append(s.messages, history.Message{Sender: history.SenderBot})
	s.persistLocked()
	s.state = StateRevealing
	s.reveal = r
	state, snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(state, snapshot)

	s.run(r)
}

func (s *Session) run(r *reveal) {
	shown := 0

	for {
		select {
		case <-r.ctx.Done():
			s.mu.Lock()
			if s.reveal != r {
				s.mu.Unlock()
				return
			}
			// session context ended before Cancel was called
			s.finishLocked(context.Cause(r.ctx))
			s.mu.Unlock()
			return

		case <-r.ticker.C():
			s.mu.Lock()
			if s.reveal != r {
				s.mu.Unlock()
				return
			}

			shown++
			s.messages[len(s.messages)-1].Text = string(r.runes[:shown])
			s.persistLocked()

			finished := shown >= len(r.runes)
			if finished {
				s.finishLocked(nil)
			}

			state, snapshot := s.snapshotLocked()
			s.mu.Unlock()

			s.notify(state, snapshot)

			if finished {
				return
			}
		}
	}
}

func (s *Session) finishLocked(cause error) {
	if s.reveal != nil {
		s.reveal.ticker.Stop()
		s.reveal.cancel(cause)
		s.reveal = nil
	}

	s.state = StateIdle
	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
}

// conversationLocked maps the transcript to gateway turns, skipping the
// empty bot placeholder of an unfinished reveal.
func (s *Session) conversationLocked() []conversation.Turn {
	turns := make([]conversation.Turn, 0, len(s.messages))

	for _, msg := range s.messages {
		if msg.Sender == history.SenderUser {
			turns = append(turns, conversation.Turn{Role: conversation.RoleUser, Content: msg.Text})
			continue
		}

		if msg.Text == "" {
			continue
		}

		turns = append(turns, conversation.Turn{Role: conversation.RoleAssistant, Content: msg.Text})
	}

	return turns
}

func (s *Session) persistLocked() {
	if err := s.store.Save(s.ctx, s.messages); err != nil {
		slog.Error("Failed to persist chat history",
			slog.Any("error", err),
		)
	}
}

func (s *Session) snapshotLocked() (State, []history.Message) {
	return s.state, append([]history.Message{}, s.messages...)
}

func (s *Session) notify(state State, messages []history.Message) {
	if s.listener != nil {
		s.listener(state, messages)
	}
}

func failureText(err error) string {
	var serverErr *companion.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.Message != "" {
			return serverErr.Message
		}
		return noResponseText
	}

	return transportFailureText
}
