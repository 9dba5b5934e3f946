package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIClient("")
	require.Error(t, err)

	client, err := NewOpenAIClient("sk-test")
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()

	require.True(t, isRateLimitError(errors.New("429 Too Many Requests")))
	require.True(t, isRateLimitError(errors.New("openai: rate limit exceeded")))
	require.False(t, isRateLimitError(errors.New("400 bad request")))
	require.False(t, isRateLimitError(nil))
}

func TestIsServerError(t *testing.T) {
	t.Parallel()

	require.True(t, isServerError(errors.New("500 Internal Server Error")))
	require.True(t, isServerError(errors.New(`{"error":{"type":"server_error"}}`)))
	require.False(t, isServerError(errors.New("401 unauthorized")))
	require.False(t, isServerError(nil))
}
