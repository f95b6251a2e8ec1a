package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// fakeExpander returns a canned response, error or stall.
type fakeExpander struct {
	response string
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeExpander) Expand(ctx context.Context, _ string) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func TestFallbackTerms_StripsStopWords(t *testing.T) {
	assert.Equal(t, []string{"business", "hour"}, FallbackTerms("What are your business hours?"))
}

func TestFallbackTerms_CorrectsTypos(t *testing.T) {
	assert.Equal(t, []string{"consultation", "pricing"}, FallbackTerms("Cousultation pricng"))
	assert.Equal(t, []string{"business", "support"}, FallbackTerms("busines suport"))
}

func TestFallbackTerms_OnlyStopWords(t *testing.T) {
	assert.Empty(t, FallbackTerms("what is the"))
	assert.Empty(t, FallbackTerms("?!"))
}

func TestEnhancer_DisabledUsesFallbackWithSynonyms(t *testing.T) {
	exp := &fakeExpander{response: "ignored"}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: false})

	q := e.Enhance(context.Background(), "support pricing")

	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, []string{
		"support", "pricing",
		"help", "assistance", "maintenance",
		"cost", "price", "quote", "fee",
	}, q.Terms)
	assert.Equal(t, int32(0), exp.calls.Load())
}

func TestEnhancer_ExpanderResponseIsCleaned(t *testing.T) {
	exp := &fakeExpander{response: `Keywords: "office hours schedule"`}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: true, Timeout: time.Second})

	q := e.Enhance(context.Background(), "business hours")

	assert.Equal(t, SourceLLM, q.Source)
	assert.Equal(t, []string{"office", "hour", "schedule", "business"}, q.Terms)
	assert.Equal(t, "business hours", q.Raw)
	assert.Equal(t, "office hour schedule business", q.Text())
}

func TestEnhancer_TimeoutFallsBackPromptly(t *testing.T) {
	exp := &fakeExpander{response: "late answer", delay: 5 * time.Second}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: true, Timeout: 20 * time.Millisecond})

	start := time.Now()
	q := e.Enhance(context.Background(), "business hours")

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, []string{"business", "hour"}, q.Terms)
}

func TestEnhancer_DegenerateResponseFallsBack(t *testing.T) {
	exp := &fakeExpander{response: "output: the and of"}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: true})

	q := e.Enhance(context.Background(), "refund policy")
	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, []string{"refund", "policy"}, q.Terms)
}

func TestEnhancer_ShortQuerySkipsExpander(t *testing.T) {
	exp := &fakeExpander{response: "anything"}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: true})

	q := e.Enhance(context.Background(), "hi")
	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, int32(0), exp.calls.Load())
}

func TestEnhancer_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	exp := &fakeExpander{err: errors.New("model crashed")}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: true})

	for i := 0; i < 8; i++ {
		q := e.Enhance(context.Background(), "data security")
		require.Equal(t, SourceFallback, q.Source)
	}

	// Default breaker opens after 5 failures.
	assert.Equal(t, int32(5), exp.calls.Load())
}

func TestEnhancer_CallerCancellationLeavesCircuitClosed(t *testing.T) {
	// Given: an expander that stalls until its context ends
	exp := &fakeExpander{response: "unused", delay: time.Minute}
	e := NewEnhancer(exp, EnhancerConfig{Enabled: true, Timeout: time.Minute})

	// When: callers abandon more searches than the failure threshold
	for i := 0; i < 7; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		q := e.Enhance(ctx, "data security")
		require.Equal(t, SourceFallback, q.Source)
	}

	// Then: the breaker recorded no failures
	assert.Equal(t, kberrors.StateClosed, e.breaker.State())
	assert.Zero(t, e.breaker.Failures())
}

func TestEnhancer_NilExpander(t *testing.T) {
	e := NewEnhancer(nil, EnhancerConfig{Enabled: true})
	q := e.Enhance(context.Background(), "data")
	assert.Equal(t, SourceFallback, q.Source)
	assert.Equal(t, []string{"data", "information", "database", "record"}, q.Terms)
}

func TestCleanResponse(t *testing.T) {
	assert.Equal(t, "a b", cleanResponse("  Corrected Keywords: 'a b' ", 200))
	assert.Equal(t, "abc", cleanResponse("abcdef", 3))
	assert.Equal(t, "plain", cleanResponse("plain", 200))
}
