package summary

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"companion/app/util/providertest"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageText(m openai.ChatCompletionMessage) string {
	if m.Content != "" {
		return m.Content
	}

	var sb strings.Builder
	for _, part := range m.MultiContent {
		sb.WriteString(part.Text)
	}

	return sb.String()
}

func TestSummarize(t *testing.T) {
	provider := providertest.New(t, "  A short post about hiking.  ")

	svc, err := NewClient(provider.Config(), "mixtral-8x7b-32768")
	require.NoError(t, err)

	got, err := svc.Summarize(context.Background(), "We walked twelve miles through the hills today and saw deer.")
	require.NoError(t, err)
	assert.Equal(t, "A short post about hiking.", got)

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "mixtral-8x7b-32768", reqs[0].Model)
	require.NotEmpty(t, reqs[0].Messages)
	assert.True(t, strings.HasPrefix(messageText(reqs[0].Messages[0]), promptPrefix))
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	provider := providertest.New(t, "unused")

	svc, err := NewClient(provider.Config(), "m")
	require.NoError(t, err)

	_, err = svc.Summarize(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, provider.Requests())
}

func TestSummarizeRejectsOversizedText(t *testing.T) {
	provider := providertest.New(t, "unused")

	svc, err := NewClient(provider.Config(), "m")
	require.NoError(t, err)

	_, err = svc.Summarize(context.Background(), strings.Repeat("a", maxTextLength+1))
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestSummarizeProviderFailure(t *testing.T) {
	provider := providertest.New(t, "unused")
	provider.SetStatus(http.StatusBadGateway)

	svc, err := NewClient(provider.Config(), "m")
	require.NoError(t, err)

	_, err = svc.Summarize(context.Background(), "some text")
	assert.ErrorIs(t, err, ErrProvider)
}
