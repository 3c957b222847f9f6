// Package feed produces the normalized tick stream the pipeline consumes.
// Two sources ship: a deterministic random-walk generator for paper and
// replay sessions, and a websocket trade-stream adapter for live data.
package feed

import (
	"context"

	"main/internal/schema"
)

// Source streams normalized ticks into emit until the context ends or the
// stream closes. A non-nil error from emit stops the source.
type Source interface {
	Run(ctx context.Context, emit func(schema.Tick) error) error
}
