package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/serpwatch/rankscan/internal/rank"
)

type countingRunner struct {
	calls int
}

func (r *countingRunner) Run(context.Context, string) rank.RunSummary {
	r.calls++
	return rank.RunSummary{Success: true}
}

func TestStartRegistersSchedule(t *testing.T) {
	t.Parallel()

	for _, schedule := range []string{"daily", "weekly", "unknown"} {
		svc := New(schedule, &countingRunner{}, zap.NewNop())
		require.NoError(t, svc.Start())
		svc.Stop()
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	svc := New("weekly", &countingRunner{}, zap.NewNop())
	svc.Stop()
}
