package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"companion/app/service/gateway"
	"companion/app/service/ratelimit"
	"companion/app/service/summary"

	"github.com/gofiber/fiber/v2"
)

const (
	rateLimitMessage  = "Rate limit exceeded. Please wait a minute."
	connectionMessage = "Connection error. Please try again."
	providerDetails   = "completion provider unavailable"
	internalDetails   = "internal error"
	summaryFailed     = "Failed to generate summary"
)

type ChatService interface {
	Chat(ctx context.Context, clientID string, req gateway.Request) (*gateway.Response, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type HealthChecker interface {
	Ping(ctx context.Context) error
	Driver() ratelimit.Driver
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SummaryRequest struct {
	Text string `json:"text"`
}

type SummaryResponse struct {
	Summary string `json:"summary"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	RateLimiter string `json:"rate_limiter"`
	Error       string `json:"error,omitempty"`
}

type Handler struct {
	chat           ChatService
	summarizer     Summarizer
	health         HealthChecker
	identityHeader string
}

func NewHandler(chat ChatService, summarizer Summarizer, health HealthChecker, identityHeader string) *Handler {
	return &Handler{
		chat:           chat,
		summarizer:     summarizer,
		health:         health,
		identityHeader: identityHeader,
	}
}

func (h *Handler) Register(app *fiber.App) {
	app.Post("/api/chat", h.Chat)
	app.Post("/api/groq/chat", h.Chat)
	app.Post("/api/summary", h.Summary)
	app.Get("/health", h.Health)
}

func (h *Handler) Chat(c *fiber.Ctx) error {
	var req gateway.Request
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "request body must be JSON"})
	}

	resp, err := h.chat.Chat(c.UserContext(), h.clientID(c), req)
	if err != nil {
		return h.chatError(c, err)
	}

	return c.JSON(resp)
}

func (h *Handler) chatError(c *fiber.Ctx, err error) error {
	var (
		rlErr *gateway.RateLimitError
		vErr  *gateway.ValidationError
	)

	switch {
	case errors.As(err, &rlErr):
		seconds := int(math.Ceil(rlErr.RetryAfter.Seconds()))
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(max(seconds, 1)))
		return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: rateLimitMessage})

	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: vErr.Message})

	case errors.Is(err, gateway.ErrProvider):
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   connectionMessage,
			Details: providerDetails,
		})

	default:
		slog.ErrorContext(c.UserContext(), "Chat failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   connectionMessage,
			Details: internalDetails,
		})
	}
}

func (h *Handler) Summary(c *fiber.Ctx) error {
	var req SummaryRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "request body must be JSON"})
	}

	result, err := h.summarizer.Summarize(c.UserContext(), req.Text)
	switch {
	case errors.Is(err, summary.ErrEmptyText):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "No text provided"})
	case errors.Is(err, summary.ErrTextTooLong):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "Text is too long"})
	case err != nil:
		slog.ErrorContext(c.UserContext(), "Summary failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: summaryFailed})
	}

	return c.JSON(SummaryResponse{Summary: result})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:      "ok",
		RateLimiter: string(h.health.Driver()),
	}

	if err := h.health.Ping(c.UserContext()); err != nil {
		resp.Status = "degraded"
		resp.Error = "rate limiter store unreachable"
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}

	return c.JSON(resp)
}

// clientID prefers a verified identity, then the originating address from
// the forwarding header, then the peer address.
func (h *Handler) clientID(c *fiber.Ctx) string {
	if h.identityHeader != "" {
		if id := strings.TrimSpace(c.Get(h.identityHeader)); id != "" {
			return "user:" + id
		}
	}

	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	return c.IP()
}
