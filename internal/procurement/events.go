package procurement

import (
	"context"
	"time"
)

// StatusChange records a committed order status transition.
type StatusChange struct {
	OrderID int64
	From    POStatus
	To      POStatus
	At      time.Time
}

// StatusObserver is told about transitions after they commit.
type StatusObserver interface {
	StatusChanged(ctx context.Context, change StatusChange)
}

// ObserverFunc adapts a function to StatusObserver.
type ObserverFunc func(ctx context.Context, change StatusChange)

// StatusChanged implements StatusObserver.
func (f ObserverFunc) StatusChanged(ctx context.Context, change StatusChange) {
	f(ctx, change)
}

func notify(ctx context.Context, observers []StatusObserver, change StatusChange) {
	for _, o := range observers {
		if o != nil {
			o.StatusChanged(ctx, change)
		}
	}
}
