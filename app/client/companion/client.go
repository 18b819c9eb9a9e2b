// Package companion is the HTTP client of the chat gateway.
package companion

import (
	"context"
	"errors"
	"fmt"

	"companion/app/config"
	"companion/app/service/conversation"
	"companion/app/service/gateway"

	"github.com/go-resty/resty/v2"
	"github.com/samber/oops"
)

const chatPath = "/api/chat"

// ErrTransport means the gateway could not be reached or answered garbage.
var ErrTransport = errors.New("gateway transport failure")

// ServerError is a non-2xx answer of the gateway.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.Status)
	}

	return fmt.Sprintf("gateway returned status %d: %s", e.Status, e.Message)
}

type errorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

type Client struct {
	http *resty.Client
}

func NewClient(cfg config.Client) *Client {
	http := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http: http,
	}
}

// Chat posts the conversation and returns the moderated reply.
func (c *Client) Chat(ctx context.Context, turns []conversation.Turn) (*gateway.Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(gateway.Request{Messages: turns}).
		SetResult(&gateway.Response{}).
		SetError(&errorPayload{}).
		Post(chatPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, oops.In("companion").Wrapf(fmt.Errorf("%w: %w", ErrTransport, err), "post chat")
	}

	if !res.IsSuccess() {
		serverErr := &ServerError{Status: res.StatusCode()}
		if payload, ok := res.Error().(*errorPayload); ok && payload != nil {
			serverErr.Message = payload.Error
		}
		return nil, serverErr
	}

	result, ok := res.Result().(*gateway.Response)
	if !ok || result == nil {
		return nil, oops.In("companion").Wrapf(ErrTransport, "unexpected chat response body")
	}

	return result, nil
}
