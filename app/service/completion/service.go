package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"companion/app/config"
	"companion/app/service/conversation"
	"companion/app/service/tone"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ErrProvider covers transport failures, timeouts and malformed provider replies.
var ErrProvider = errors.New("completion provider error")

// Params are the generation settings derived from the tone.
type Params struct {
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
}

var (
	crisisParams  = Params{Temperature: 0.3, MaxTokens: 150, TopP: 0.85, FrequencyPenalty: 0.4}
	defaultParams = Params{Temperature: 0.7, MaxTokens: 256, TopP: 0.85, FrequencyPenalty: 0.4}
)

// ParamsFor returns stricter and shorter settings for crisis conversations.
func ParamsFor(label tone.Label) Params {
	if label == tone.Crisis {
		return crisisParams
	}

	return defaultParams
}

type Service struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	throttle *rate.Limiter
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewClient(cfg.Provider), nil
}

func NewClient(cfg config.Provider) *Service {
	clientConfig := openai.DefaultConfig(cfg.Token)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}

	s := &Service{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}

	if cfg.RequestsPerSecond > 0 {
		s.throttle = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return s
}

func (s *Service) Model() string {
	return s.model
}

// Complete sends the system prompt followed by the recent turns and returns the draft reply.
func (s *Service) Complete(
	ctx context.Context,
	systemPrompt string,
	turns []conversation.Turn,
	label tone.Label,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.throttle != nil {
		if err := s.throttle.Wait(ctx); err != nil {
			return "", providerError(err, "wait for provider throttle")
		}
	}

	params := ParamsFor(label)

	messages := append(
		[]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemPrompt}},
		pie.Map(conversation.Recent(turns), toMessage)...,
	)

	aiResponse, err := s.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:            s.model,
			Messages:         messages,
			Temperature:      params.Temperature,
			MaxTokens:        params.MaxTokens,
			TopP:             params.TopP,
			FrequencyPenalty: params.FrequencyPenalty,
		},
	)
	if err != nil {
		return "", providerError(err, "create chat completion")
	}

	if len(aiResponse.Choices) == 0 {
		return "", providerError(errors.New("no choices in response"), "read chat completion")
	}

	result := strings.TrimSpace(aiResponse.Choices[0].Message.Content)
	if result == "" {
		return "", providerError(errors.New("empty message content"), "read chat completion")
	}

	slog.DebugContext(ctx, "Completion received",
		"tone", label,
		"turns", len(messages),
		"tokens", aiResponse.Usage.TotalTokens,
	)

	return result, nil
}

func toMessage(t conversation.Turn) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if t.Role == conversation.RoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	return openai.ChatCompletionMessage{
		Role:    role,
		Content: t.Content,
	}
}

func providerError(err error, msg string) error {
	return oops.In("completion").Wrapf(fmt.Errorf("%w: %w", ErrProvider, err), "%s", msg)
}
