package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Cull is the periodic job removing expired entries of all caches.
type Cull struct{}

func (Cull) JobType() string { return "cache.Cull" }

// CullFunc returns the JobFunc working the Cull job for the caches implementing Culler.
func CullFunc(logger *slog.Logger, caches map[string]Cache) func(context.Context, Cull) error {
	aliases := make([]string, 0, len(caches))
	for alias := range caches {
		aliases = append(aliases, alias)
	}

	sort.Strings(aliases)

	return func(ctx context.Context, _ Cull) error {
		for _, alias := range aliases {
			culler, ok := caches[alias].(Culler)
			if !ok {
				continue
			}

			n, err := culler.Cull(ctx)
			if err != nil {
				return fmt.Errorf("could not cull cache %s: %w", alias, err)
			}

			logger.DebugContext(ctx, "culled cache", slog.String("cache", alias), slog.Int64("removed", n))
		}

		return nil
	}
}
