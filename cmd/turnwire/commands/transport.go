package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/provider"
	"github.com/turnwire/turnwire/internal/tool"
	"github.com/turnwire/turnwire/internal/transport"
	"github.com/turnwire/turnwire/pkg/types"
)

// buildTransport constructs the configured transport publishing into demux.
func buildTransport(ctx context.Context, cfg *types.Config, demux *event.Demux) (transport.Transport, error) {
	kind := cfg.Transport.Kind
	if kind == "" {
		// A scenario path with no explicit kind means scripted playback.
		if cfg.Transport.Scenario != "" {
			kind = "script"
		} else {
			kind = "provider"
		}
	}

	switch kind {
	case "script":
		if cfg.Transport.Scenario == "" {
			return nil, fmt.Errorf("script transport requires transport.scenario")
		}
		return transport.NewScriptTransport(demux, cfg.Transport.Scenario)

	case "provider":
		registry, err := provider.InitializeProviders(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("initializing providers: %w", err)
		}
		var opts []transport.ProviderOption
		if cfg.Tools.Enable {
			workDir := cfg.Tools.WorkDir
			if workDir == "" {
				workDir, err = os.Getwd()
				if err != nil {
					return nil, err
				}
			}
			guard := tool.NewGuard(cfg.Tools.BashAllow...)
			runner := tool.NewRunner(tool.DefaultRegistry(workDir, guard), demux, workDir)
			opts = append(opts, transport.WithRunner(runner))
		}
		return transport.NewProviderTransport(demux, registry, opts...), nil

	case "sse":
		if cfg.Transport.Remote == "" {
			return nil, fmt.Errorf("sse transport requires transport.remote")
		}
		return transport.NewSSETransport(demux, cfg.Transport.Remote), nil

	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
