package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Run starts the components the configured mode requires and blocks until
// ctx is canceled or a component fails. Modes:
//
//	monitor - resolution monitor only
//	sync    - state synchronizer only
//	server  - HTTP API only
//	full    - everything, including the archiver when enabled
func Run(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	mode := strings.ToLower(deps.Config.Mode)
	switch mode {
	case "monitor":
		g.Go(func() error { return deps.Monitor.Run(ctx) })
	case "sync":
		g.Go(func() error { return deps.Syncer.Run(ctx) })
	case "server":
		if deps.Server == nil {
			return fmt.Errorf("app: mode server requires server.enabled = true")
		}
		g.Go(func() error { return deps.Server.Run(ctx) })
	case "full":
		g.Go(func() error { return deps.Monitor.Run(ctx) })
		g.Go(func() error { return deps.Syncer.Run(ctx) })
		if deps.Server != nil {
			g.Go(func() error { return deps.Server.Run(ctx) })
		}
		if deps.Archiver != nil {
			g.Go(func() error { return deps.Archiver.Run(ctx) })
		}
	default:
		return fmt.Errorf("app: unknown mode %q", deps.Config.Mode)
	}

	return g.Wait()
}
