// Package history persists the client-side chat transcript.
package history

import (
	"context"
	"errors"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one line of the transcript as shown to the user.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// Store keeps one ordered transcript under a session key.
type Store interface {
	// Load returns the saved transcript, empty when nothing was saved.
	Load(ctx context.Context) ([]Message, error)
	// Save replaces the saved transcript.
	Save(ctx context.Context, messages []Message) error
	// Clear removes the saved transcript.
	Clear(ctx context.Context) error
	Close() error
}

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverFile   Driver = "file"
	DriverSQLite Driver = "sqlite"
)

var (
	ErrInvalidDriver = errors.New("invalid history driver")
	ErrInvalidConfig = errors.New("invalid history configuration")
)

type Option func(*options)

type options struct {
	path string
	key  string
}

// WithPath sets the directory (file driver) or database file (sqlite driver).
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithKey scopes the transcript, defaults to "chatHistory".
func WithKey(key string) Option {
	return func(o *options) {
		o.key = key
	}
}

func NewStore(driver Driver, opts ...Option) (Store, error) {
	o := &options{key: "chatHistory"}
	for _, opt := range opts {
		opt(o)
	}

	if o.key == "" {
		return nil, ErrInvalidConfig
	}

	switch driver {
	case DriverMemory:
		return newMemoryStore(), nil

	case DriverFile:
		if o.path == "" {
			return nil, ErrInvalidConfig
		}
		return newFileStore(o.path, o.key)

	case DriverSQLite:
		if o.path == "" {
			return nil, ErrInvalidConfig
		}
		return newSQLiteStore(o.path, o.key)

	default:
		return nil, ErrInvalidDriver
	}
}
