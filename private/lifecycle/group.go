// Package lifecycle provides a Group: a named set of long-running
// services whose Run phases are started together (via an errgroup) and
// whose Close phases tear down in strict reverse-of-add order, the way
// a pipeline's operators, sources, and sinks must unwind.
package lifecycle

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Item is one service in a Group. Run and Close are each optional; a nil
// Run means the item has nothing to do once started (e.g. it's driven
// entirely by other items), and a nil Close means it has nothing to tear
// down.
type Item struct {
	Name  string
	Run   func(ctx context.Context) error
	Close func() error
}

// closeStallWarning is how long a single item's Close is allowed to run
// before the group logs a condensed stack trace, so a hang during
// shutdown is diagnosable instead of silent.
const closeStallWarning = 5 * time.Second

// Group runs and closes a named list of items together.
type Group struct {
	log   *zap.Logger
	items []Item
}

// NewGroup creates an empty group.
func NewGroup(log *zap.Logger) *Group {
	return &Group{log: log}
}

// Add appends an item to the group. Items close in the reverse order
// they were added.
func (group *Group) Add(item Item) {
	group.items = append(group.items, item)
}

// Run starts every item with a non-nil Run inside g, so the caller's
// g.Wait() reflects the first item to fail (or nil once everything
// either returns or the group is cancelled).
func (group *Group) Run(ctx context.Context, g *errgroup.Group) {
	for _, item := range group.items {
		item := item
		if item.Run == nil {
			continue
		}
		g.Go(func() error {
			err := item.Run(ctx)
			if err != nil {
				group.log.Error("service finished with error", zap.String("service", item.Name), zap.Error(err))
			}
			return err
		})
	}
}

// Close tears down every item with a non-nil Close in reverse-of-add
// order, continuing past individual failures and returning their
// combined error.
func (group *Group) Close() error {
	var combined errs.Group
	for i := len(group.items) - 1; i >= 0; i-- {
		item := group.items[i]
		if item.Close == nil {
			continue
		}
		if err := group.closeWithStallWarning(item); err != nil {
			combined.Add(err)
		}
	}
	return combined.Err()
}

func (group *Group) closeWithStallWarning(item Item) error {
	done := make(chan error, 1)
	go func() { done <- item.Close() }()

	timer := time.NewTimer(closeStallWarning)
	defer timer.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-timer.C:
			group.log.Warn("service taking a long time to close",
				zap.String("service", item.Name),
				zap.ByteString("stack", condenseStack(currentStack())))
			timer.Reset(closeStallWarning)
		}
	}
}
