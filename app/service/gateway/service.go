package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"companion/app/service/completion"
	"companion/app/service/conversation"
	"companion/app/service/pacing"
	"companion/app/service/prompt"
	"companion/app/service/ratelimit"
	"companion/app/service/safety"
	"companion/app/service/tone"
	"companion/app/util/mylog"

	"github.com/go-playground/validator/v10"
	"github.com/samber/do"
	"github.com/samber/oops"
)

type Admitter interface {
	Admit(ctx context.Context, key string) (ratelimit.Decision, error)
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt string, turns []conversation.Turn, label tone.Label) (string, error)
	Model() string
}

type Service struct {
	limiter   Admitter
	completer Completer
	validate  *validator.Validate
}

func New(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[*ratelimit.Service](di),
		do.MustInvoke[*completion.Service](di),
	), nil
}

func NewService(limiter Admitter, completer Completer) *Service {
	return &Service{
		limiter:   limiter,
		completer: completer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Chat runs one moderated exchange. Rate limiting happens before the
// request is inspected so rejected clients never reach the provider.
func (s *Service) Chat(ctx context.Context, clientID string, req Request) (*Response, error) {
	log := slog.With("client", clientID)
	log.DebugContext(ctx, "Chat request", "stage", StageReceived, "messages", len(req.Messages))

	decision, err := s.limiter.Admit(ctx, clientID)
	if err != nil {
		log.WarnContext(ctx, "Rate limiter unavailable, admitting request", "error", err)
		decision.Allowed = true
	}
	if !decision.Allowed {
		log.InfoContext(ctx, "Chat request rejected", "stage", StageRejected, "retry_after", decision.RetryAfter)
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	log.DebugContext(ctx, "Chat request admitted", "stage", StageRateChecked, "remaining", decision.Remaining)

	if err = s.validateRequest(req); err != nil {
		log.InfoContext(ctx, "Chat request invalid", "stage", StageInvalid, "error", err)
		return nil, err
	}

	label := tone.Classify(req.Messages)
	log = log.With("tone", label)
	log.DebugContext(ctx, "Tone classified", "stage", StageClassified)

	systemPrompt := prompt.Compose(label)
	log.DebugContext(ctx, "Prompt composed", "stage", StagePrompted)

	draft, err := s.completer.Complete(ctx, systemPrompt, req.Messages, label)
	if err != nil {
		log.ErrorContext(ctx, "Completion failed", "stage", StageErrored, "error", err)
		if !errors.Is(err, ErrProvider) {
			err = fmt.Errorf("%w: %w", ErrProvider, err)
		}
		return nil, oops.In("gateway").Wrapf(err, "complete chat")
	}
	log.DebugContext(ctx, "Draft received", "stage", StageCompleted)

	filtered := safety.Check(draft, conversation.Latest(req.Messages))
	if filtered.Triggered {
		log.WarnContext(ctx, "Safety override applied", "stage", StageFiltered, mylog.Alert())
	}

	resp := &Response{
		Result: filtered.Text,
		Meta: Meta{
			Tone:            label,
			SafetyTriggered: filtered.Triggered,
			TypingDelay:     pacing.DelayMillis(filtered.Text),
			Model:           s.completer.Model(),
		},
	}

	log.InfoContext(ctx, "Chat request completed",
		"stage", StageResponded,
		"safety_triggered", filtered.Triggered,
		"typing_delay", resp.Meta.TypingDelay,
	)

	return resp, nil
}

func (s *Service) validateRequest(req Request) error {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return &ValidationError{Message: describeFieldError(fieldErrs[0])}
		}
		return &ValidationError{Message: "invalid request body"}
	}

	if strings.TrimSpace(conversation.Latest(req.Messages)) == "" {
		return &ValidationError{Message: "latest message content is empty"}
	}

	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "min":
		if fe.Field() == "Messages" {
			return "messages are required"
		}
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Namespace(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Namespace())
	}
}
