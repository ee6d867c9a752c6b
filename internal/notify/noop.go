package notify

import (
	"context"

	"github.com/serpwatch/rankscan/internal/rank"
)

// Noop discards failure alerts. Used when SMTP is not configured.
type Noop struct{}

// NewNoop returns a Noop notifier.
func NewNoop() *Noop {
	return &Noop{}
}

// NotifyRunFailed does nothing.
func (*Noop) NotifyRunFailed(context.Context, rank.RunSummary) error {
	return nil
}
