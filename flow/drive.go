package flow

import (
	"context"
	"time"
)

// Drive updates nodes in order once per interval until ctx is done.
// Update errors go to onErr, or are dropped when onErr is nil; they never
// stop the loop. Drive does not call Init or Shutdown.
func Drive(ctx context.Context, interval time.Duration, nodes []Node, onErr func(Node, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, n := range nodes {
				if err := n.Update(); err != nil && onErr != nil {
					onErr(n, err)
				}
			}
		}
	}
}
