package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultInjectorDisabledNeverFires(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{Seed: 42})

	assert.False(t, inj.Enabled())
	assert.NoError(t, inj.MaybeToolError("flights_search_links"))
	assert.NoError(t, inj.MaybeToolTimeout(context.Background(), "flights_search_links"))
	assert.NoError(t, inj.MaybeLLMError("planner"))

	hits, injected := inj.MaybeBadRetrieval("query")
	assert.False(t, injected)
	assert.Nil(t, hits)
}

func TestFaultInjectorDeterministicForSeed(t *testing.T) {
	sequence := func() []bool {
		inj := NewFaultInjector(FaultConfig{ToolError: true, Seed: 42, Probability: 0.5})
		fired := make([]bool, 20)
		for i := range fired {
			fired[i] = inj.MaybeToolError("x") != nil
		}
		return fired
	}

	assert.Equal(t, sequence(), sequence())
}

func TestMaybeToolErrorReturnsTypedError(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{ToolError: true, Seed: 42})

	err := inj.MaybeToolError("hotels_search_links")
	require.Error(t, err)

	var toolErr *ToolFailureError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "hotels_search_links", toolErr.ToolName)
	assert.Contains(t, err.Error(), "injected tool error")
}

func TestMaybeToolTimeoutSleepsThenFails(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{ToolTimeout: true, Seed: 42, Sleep: 5 * time.Millisecond})

	start := time.Now()
	err := inj.MaybeToolTimeout(context.Background(), "flights_search_links")
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	var timeoutErr *ToolTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "flights_search_links", timeoutErr.ToolName)
}

func TestMaybeToolTimeoutHonorsCancellation(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{ToolTimeout: true, Seed: 42, Sleep: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := inj.MaybeToolTimeout(ctx, "flights_search_links")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaybeBadRetrievalEmptyMode(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{BadRetrieval: true, Seed: 42})

	hits, injected := inj.MaybeBadRetrieval("paris museums")
	require.True(t, injected)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)
}

func TestMaybeBadRetrievalGarbageMode(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{BadRetrieval: true, Seed: 42, RetrievalMode: RetrievalGarbage})

	hits, injected := inj.MaybeBadRetrieval("paris museums")
	require.True(t, injected)
	require.Len(t, hits, 1)
	assert.Equal(t, "bad_retrieval_1", hits[0].ID)
	assert.Contains(t, hits[0].Text, "paris museums")
	assert.Equal(t, 0.99, hits[0].Distance)
	assert.Equal(t, "injected", hits[0].Metadata["type"])
}

func TestMaybeLLMErrorNamesStage(t *testing.T) {
	inj := NewFaultInjector(FaultConfig{LLMError: true, Seed: 42})

	err := inj.MaybeLLMError("intent")
	require.Error(t, err)

	var llmErr *LLMFailureError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, "intent", llmErr.Stage)
}
