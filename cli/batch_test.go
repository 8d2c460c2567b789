package cli

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-optimizer/apperr"
	"listing-optimizer/models"
	"listing-optimizer/utils"
)

type scriptedPipeline struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string][]error
}

func newScriptedPipeline() *scriptedPipeline {
	return &scriptedPipeline{calls: map[string]int{}, fail: map[string][]error{}}
}

func (p *scriptedPipeline) Run(_ context.Context, asin, _ string) (*models.OptimizationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.calls[asin]
	p.calls[asin] = n + 1
	if n < len(p.fail[asin]) {
		return nil, p.fail[asin][n]
	}
	return &models.OptimizationResult{ID: int64(n + 1), ASIN: asin}, nil
}

func (p *scriptedPipeline) callsFor(asin string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[asin]
}

func testBatchOptions() batchOptions {
	return batchOptions{Concurrency: 2, MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestRunBatchDropsDuplicatesAndKeepsOrder(t *testing.T) {
	p := newScriptedPipeline()

	results := runBatch(context.Background(), p,
		[]string{"b0aaaaaaa1", "B0BBBBBBB2", " B0AAAAAAA1 "}, testBatchOptions(), utils.NewNopLogger())

	require.Len(t, results, 2)
	assert.Equal(t, "B0AAAAAAA1", results[0].ASIN)
	assert.Equal(t, "B0BBBBBBB2", results[1].ASIN)
	assert.Equal(t, 1, p.callsFor("B0AAAAAAA1"))
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, r.ASIN, r.Result.ASIN)
	}
}

func TestRunBatchRetriesTransientFailures(t *testing.T) {
	p := newScriptedPipeline()
	p.fail["B0BLOCKED1"] = []error{
		apperr.New(apperr.KindBlocked, "captcha"),
		apperr.New(apperr.KindTransport, "connection reset"),
	}

	results := runBatch(context.Background(), p, []string{"B0BLOCKED1"}, testBatchOptions(), utils.NewNopLogger())

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 3, p.callsFor("B0BLOCKED1"))
}

func TestRunBatchStopsOnPermanentFailure(t *testing.T) {
	p := newScriptedPipeline()
	p.fail["B0MISSING1"] = []error{apperr.New(apperr.KindNotFound, "no such product")}

	results := runBatch(context.Background(), p, []string{"B0MISSING1"}, testBatchOptions(), utils.NewNopLogger())

	require.Len(t, results, 1)
	assert.True(t, apperr.Is(results[0].Err, apperr.KindNotFound))
	assert.Nil(t, results[0].Result)
	assert.Equal(t, 1, p.callsFor("B0MISSING1"))
}

func TestRunBatchKeepsKindAfterExhaustingAttempts(t *testing.T) {
	p := newScriptedPipeline()
	down := apperr.New(apperr.KindRewriteUnavailable, "model unavailable")
	p.fail["B0NOMODEL1"] = []error{down, down, down, down}

	results := runBatch(context.Background(), p, []string{"B0NOMODEL1"}, testBatchOptions(), utils.NewNopLogger())

	require.Len(t, results, 1)
	assert.True(t, apperr.Is(results[0].Err, apperr.KindRewriteUnavailable))
	assert.Equal(t, 3, p.callsFor("B0NOMODEL1"))
}
