package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// fileStore writes the transcript as JSON lines, one message per line.
type fileStore struct {
	path string
	mu   sync.RWMutex
}

func newFileStore(dir, key string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, oops.In("history").Wrapf(err, "create history dir")
	}

	return &fileStore{
		path: filepath.Join(dir, key+".jsonl"),
	}, nil
}

func (s *fileStore) Load(context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := []Message{}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return messages, nil
	}
	if err != nil {
		return nil, oops.In("history").Wrapf(err, "open history file")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg Message
		if err = json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, oops.In("history").Wrapf(err, "parse history line")
		}

		messages = append(messages, msg)
	}

	if err = scanner.Err(); err != nil {
		return nil, oops.In("history").Wrapf(err, "read history file")
	}

	return messages, nil
}

// Save replaces the file atomically via a temp file and rename.
func (s *fileStore) Save(_ context.Context, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return oops.In("history").Wrapf(err, "create temp history file")
	}
	defer os.Remove(tmp.Name())

	writer := bufio.NewWriter(tmp)

	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			_ = tmp.Close()
			return oops.In("history").Wrapf(err, "marshal message")
		}
		if _, err = writer.Write(append(data, '\n')); err != nil {
			_ = tmp.Close()
			return oops.In("history").Wrapf(err, "write message")
		}
	}

	if err = writer.Flush(); err != nil {
		_ = tmp.Close()
		return oops.In("history").Wrapf(err, "flush history file")
	}

	if err = tmp.Close(); err != nil {
		return oops.In("history").Wrapf(err, "close history file")
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return oops.In("history").Wrapf(err, "replace history file")
	}

	return nil
}

func (s *fileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return oops.In("history").Wrapf(err, "remove history file")
	}

	return nil
}

func (s *fileStore) Close() error {
	return nil
}
