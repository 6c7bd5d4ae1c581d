package audit

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/risk-scoring-agents/internal/domain"
)

func TestReliableStorage_RetriesTransientErrors(t *testing.T) {
	store := &memStorage{fail: 2}
	rs := NewReliableStorage(store, ReliableConfig{Attempts: 3, RetryDelay: time.Millisecond}, zaptest.NewLogger(t))

	err := rs.WriteBatch(context.Background(), []domain.AssessmentRecord{record(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, store.callCount())
	assert.Equal(t, 1, store.count())
}

func TestReliableStorage_GivesUpAfterAttempts(t *testing.T) {
	store := &memStorage{fail: 100}
	rs := NewReliableStorage(store, ReliableConfig{Attempts: 2, RetryDelay: time.Millisecond, CBFailures: 10}, zaptest.NewLogger(t))

	err := rs.WriteBatch(context.Background(), []domain.AssessmentRecord{record(1)})
	require.Error(t, err)
	assert.Equal(t, 2, store.callCount())
	assert.Equal(t, gobreaker.StateClosed, rs.State())
}

func TestReliableStorage_OpensCircuit(t *testing.T) {
	store := &memStorage{fail: 100}
	rs := NewReliableStorage(store, ReliableConfig{
		Attempts:   1,
		RetryDelay: time.Millisecond,
		CBFailures: 2,
		CBTimeout:  time.Hour,
	}, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		require.Error(t, rs.WriteBatch(context.Background(), []domain.AssessmentRecord{record(i)}))
	}
	assert.Equal(t, gobreaker.StateOpen, rs.State())

	calls := store.callCount()
	err := rs.WriteBatch(context.Background(), []domain.AssessmentRecord{record(3)})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, calls, store.callCount(), "open breaker must not reach storage")
}
