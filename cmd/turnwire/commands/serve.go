package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turnwire/turnwire/internal/config"
	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/server"
	"github.com/turnwire/turnwire/internal/sink"
	"github.com/turnwire/turnwire/pkg/types"
)

var (
	servePort      int
	serveHost      string
	serveTransport string
	serveScenario  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator server",
	Long: `Host the coordinator HTTP API: session lifecycle, turn dispatch,
and real-time event feeds over SSE and WebSocket.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "Transport kind (script|provider|sse)")
	serveCmd.Flags().StringVar(&serveScenario, "scenario", "", "Scenario file for the script transport")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	applyServeFlags(cfg)

	return Serve(cmd.Context(), cfg)
}

// applyServeFlags lets command-line flags override the loaded config.
func applyServeFlags(cfg *types.Config) {
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if serveTransport != "" {
		cfg.Transport.Kind = serveTransport
	}
	if serveScenario != "" {
		cfg.Transport.Scenario = serveScenario
	}
}

// Serve wires the transport, sinks, and server, then runs until the context
// is cancelled or a termination signal arrives. Shared with the standalone
// server binary.
func Serve(ctx context.Context, cfg *types.Config) error {
	log := logging.Component("serve")

	demux := event.NewDemux()
	defer demux.Close()

	trans, err := buildTransport(ctx, cfg, demux)
	if err != nil {
		return err
	}
	defer trans.Close()

	sinkCfg := cfg.Sink
	if sinkCfg.Journal == nil && sinkCfg.Redis == nil {
		// Journal to the state dir by default so turns leave a trace.
		sinkCfg.Journal = &types.JournalSinkConfig{Dir: config.GetPaths().JournalPath()}
	}
	sinks, err := sink.FromConfig(sinkCfg)
	if err != nil {
		return err
	}
	manager := sink.NewManager(demux, sinks)
	defer manager.Close()

	srvCfg := server.DefaultConfig()
	if cfg.Server.Host != "" {
		srvCfg.Host = cfg.Server.Host
	}
	if cfg.Server.Port != 0 {
		srvCfg.Port = cfg.Server.Port
	}
	srvCfg.EnableCORS = cfg.Server.EnableCORS
	if cfg.Server.ReadTimeout != 0 {
		srvCfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	}

	srv := server.New(srvCfg, trans, demux, latency.NewTracker())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
