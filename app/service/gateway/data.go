package gateway

import (
	"errors"
	"fmt"
	"time"

	"companion/app/service/completion"
	"companion/app/service/conversation"
	"companion/app/service/tone"
)

// Stage is a step of the per-request state machine, used in logs.
type Stage string

const (
	StageReceived    Stage = "received"
	StageRateChecked Stage = "rate_checked"
	StageClassified  Stage = "classified"
	StagePrompted    Stage = "prompted"
	StageCompleted   Stage = "completed"
	StageFiltered    Stage = "filtered"
	StageResponded   Stage = "responded"

	StageRejected Stage = "rejected"
	StageInvalid  Stage = "invalid"
	StageErrored  Stage = "errored"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrValidation  = errors.New("invalid chat request")
	ErrProvider    = completion.ErrProvider
)

// RateLimitError is returned when the client spent its window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type Request struct {
	Messages []conversation.Turn `json:"messages" validate:"required,min=1,dive"`
}

type Meta struct {
	Tone            tone.Label `json:"tone"`
	SafetyTriggered bool       `json:"safety_triggered"`
	TypingDelay     int        `json:"typing_delay"`
	Model           string     `json:"model"`
}

type Response struct {
	Result string `json:"result"`
	Meta   Meta   `json:"meta"`
}
