package summary

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"companion/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	promptPrefix    = "Summarize this text well under 20 words: "
	fallbackSummary = "No summary generated"
	maxTextLength   = 20000
)

var (
	ErrEmptyText   = errors.New("no text provided")
	ErrTextTooLong = errors.New("text is too long")
	ErrProvider    = errors.New("summary provider error")
)

type Service struct {
	llm     llms.Model
	timeout time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewClient(cfg.Provider, cfg.Summary.Model)
}

// NewClient builds a summarizer on the provider endpoint with its own model.
func NewClient(cfg config.Provider, model string) (*Service, error) {
	llm, err := openai.New(
		openai.WithToken(cfg.Token),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		openai.WithCallback(LogCallbackHandler{}),
	)
	if err != nil {
		return nil, oops.In("summary").Wrapf(err, "create summary model")
	}

	return &Service{
		llm:     llm,
		timeout: cfg.Timeout,
	}, nil
}

// Summarize condenses a post into a single short sentence.
func (s *Service) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if len(text) > maxTextLength {
		return "", ErrTextTooLong
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := llms.GenerateFromSinglePrompt(ctx, s.llm, promptPrefix+text)
	if err != nil {
		return "", oops.In("summary").Wrapf(fmt.Errorf("%w: %w", ErrProvider, err), "generate summary")
	}

	result = strings.TrimSpace(result)
	if result == "" {
		return fallbackSummary, nil
	}

	return result, nil
}
