// Package channels connects external chat surfaces to the runtime. A channel
// receives user messages, routes them to the multi-task router or the dev
// worker, and pushes progress updates back out.
package channels

import "context"

// Channel is a long-running message surface. Start blocks until ctx is
// cancelled or the channel fails permanently.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
}
