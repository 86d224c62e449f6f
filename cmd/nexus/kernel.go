package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/history"
	"github.com/loykin/nexus/internal/history/factory"
	"github.com/loykin/nexus/internal/kernel"
)

// openSinks opens one history sink per DSN. On failure the sinks opened so
// far are closed again.
func openSinks(dsns []string) ([]history.Sink, error) {
	sinks := make([]history.Sink, 0, len(dsns))
	for _, dsn := range dsns {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeSinks(sinks []history.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// bootKernel builds a kernel from cfg and seeds its users and files.
// Seeding problems are logged, not fatal.
func bootKernel(ctx context.Context, cfg *config.Config, log *slog.Logger) (*kernel.Kernel, error) {
	sinks, err := openSinks(cfg.History.DSNs)
	if err != nil {
		return nil, err
	}
	k := kernel.New(cfg.Kernel,
		kernel.WithLogger(log),
		kernel.WithSinks(sinks...),
		kernel.WithRingSize(cfg.History.RingSize))
	if err := k.Boot(ctx, cfg); err != nil {
		log.Warn("boot", slog.Any("error", err))
	}
	return k, nil
}
