package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type reconcilerFunc func(ctx context.Context) (int, error)

func (f reconcilerFunc) Reconcile(ctx context.Context) (int, error) { return f(ctx) }

func TestPresenceReconciler_Runs_At_Start_And_Periodically(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	worker := NewPresenceReconciler(reconcilerFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 1, nil
	}), slog.Default(), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	req.NoError(worker.Run(ctx))
	req.GreaterOrEqual(calls.Load(), int32(3))
}

func TestPresenceReconciler_Returns_Errors_To_Supervisor(t *testing.T) {
	req := require.New(t)
	boom := errors.New("badger closed")
	worker := NewPresenceReconciler(reconcilerFunc(func(context.Context) (int, error) {
		return 0, boom
	}), slog.Default(), time.Hour)

	req.ErrorIs(worker.Run(context.Background()), boom)
}
