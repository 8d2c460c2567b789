package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-optimizer/config"
	"listing-optimizer/utils"
)

func TestGenerateWithoutKeyFails(t *testing.T) {
	c, err := New(context.Background(), &config.Config{GeminiModel: "gemini-2.0-flash"}, utils.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", c.Model())
	_, err = c.Generate(context.Background(), "prompt", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
