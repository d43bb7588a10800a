package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/pkg/errors"
)

type fakeSweeper struct {
	settled int
	err     error
	limits  []int
}

func (s *fakeSweeper) SettleDueFights(ctx context.Context, limit int) (int, error) {
	s.limits = append(s.limits, limit)
	return s.settled, s.err
}

func TestReconciler_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("SweepsWithBatchLimit", func(t *testing.T) {
		sweeper := &fakeSweeper{settled: 3}
		r := NewReconciler(sweeper, time.Minute, true)

		err := r.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, []int{defaultBatchLimit}, sweeper.limits)

		health := r.Health()
		assert.EqualValues(t, 1, health.RunCount)
		assert.EqualValues(t, 0, health.ErrorCount)
	})

	t.Run("SweepErrorIsRecorded", func(t *testing.T) {
		sweeper := &fakeSweeper{err: errors.New("postgres down")}
		r := NewReconciler(sweeper, time.Minute, true)

		err := r.Run(ctx)
		assert.Error(t, err)

		health := r.Health()
		assert.EqualValues(t, 1, health.ErrorCount)
		assert.Error(t, health.LastError)
	})

	t.Run("EmptySweepIsSuccess", func(t *testing.T) {
		sweeper := &fakeSweeper{settled: 0}
		r := NewReconciler(sweeper, time.Minute, true)

		err := r.Run(ctx)
		require.NoError(t, err)
	})

	t.Run("WorkerIdentity", func(t *testing.T) {
		r := NewReconciler(&fakeSweeper{}, 2*time.Minute, true)

		assert.Equal(t, "settlement_reconciler", r.Name())
		assert.Equal(t, 2*time.Minute, r.Interval())
		assert.True(t, r.Enabled())
	})
}
