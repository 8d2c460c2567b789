package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfSurvivesWrapping(t *testing.T) {
	base := New(KindBlocked, "captcha page")
	wrapped := fmt.Errorf("run B08N5WRWNW: %w", base)

	assert.Equal(t, KindBlocked, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindBlocked))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(KindTransport, "fetch failed", errors.New("dial tcp: timeout"))
	assert.Equal(t, "fetch failed: dial tcp: timeout", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "dial tcp")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(KindBlocked))
	assert.True(t, Retryable(KindRewriteUnavailable))
	assert.False(t, Retryable(KindNotFound))
	assert.False(t, Retryable(KindValidation))
}
