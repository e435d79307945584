package commands

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/headless"
	"github.com/turnwire/turnwire/internal/latency"
)

var (
	sendSession   string
	sendTransport string
	sendScenario  string
	sendProvider  string
	sendModel     string
	sendTimeout   time.Duration
	sendJSON      bool
	sendQuiet     bool
)

var sendCmd = &cobra.Command{
	Use:   "send [prompt]",
	Short: "Drive one turn and print the response",
	Long: `Dispatch a single prompt, stream the response to stdout, and print
a completion summary. Exits non-zero when the turn fails.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendSession, "session", "", "Session id for multi-turn continuity")
	sendCmd.Flags().StringVar(&sendTransport, "transport", "", "Transport kind (script|provider|sse)")
	sendCmd.Flags().StringVar(&sendScenario, "scenario", "", "Scenario file for the script transport")
	sendCmd.Flags().StringVar(&sendProvider, "provider", "", "Provider id for the provider transport")
	sendCmd.Flags().StringVar(&sendModel, "model", "", "Model id for the provider transport")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 10*time.Minute, "Abort the turn after this long")
	sendCmd.Flags().BoolVar(&sendJSON, "json", false, "Emit one JSON result instead of streaming text")
	sendCmd.Flags().BoolVar(&sendQuiet, "quiet", false, "Suppress tool notices")
}

func runSend(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("prompt is required")
	}

	cfg := appConfig
	if sendTransport != "" {
		cfg.Transport.Kind = sendTransport
	}
	if sendScenario != "" {
		cfg.Transport.Scenario = sendScenario
	}
	if sendProvider != "" {
		cfg.Transport.Provider = sendProvider
	}
	if sendModel != "" {
		cfg.Transport.Model = sendModel
	}

	demux := event.NewDemux()
	defer demux.Close()

	trans, err := buildTransport(cmd.Context(), cfg, demux)
	if err != nil {
		return err
	}
	defer trans.Close()

	runCfg := headless.DefaultConfig()
	runCfg.Prompt = prompt
	runCfg.SessionID = sendSession
	runCfg.Timeout = sendTimeout
	runCfg.Quiet = sendQuiet
	if sendJSON {
		runCfg.Format = headless.OutputJSON
	}

	runner := headless.NewRunner(trans, demux, latency.NewTracker(), runCfg)
	res, err := runner.Run(cmd.Context(), os.Stdout)
	if err != nil {
		// The printer already reported the failure; exit with its code.
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		os.Exit(int(res.ExitCode))
	}
	return nil
}
