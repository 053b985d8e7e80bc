// File: cmd/scan.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roguesec/rogue/internal/browser"
	"github.com/roguesec/rogue/internal/config"
	"github.com/roguesec/rogue/internal/dispatcher"
	"github.com/roguesec/rogue/internal/llmclient"
	"github.com/roguesec/rogue/internal/netcapture"
	"github.com/roguesec/rogue/internal/observability"
	"github.com/roguesec/rogue/internal/orchestrator"
	"github.com/roguesec/rogue/internal/validator"
)

// newScanCmd creates and configures the `scan` command.
func newScanCmd() *cobra.Command {
	var (
		outputDir         string
		maxIterations     int
		model             string
		provider          string
		headless          bool
		safeMode          bool
		exportCSV         bool
		includeThirdParty bool
		withProxy         bool
	)

	scanCmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Runs an agent-driven security scan against the target URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			target := args[0]
			if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
				target = "https://" + target
			}
			cfg.Scan.TargetURL = target

			// Flags override file and environment values only when set.
			flags := cmd.Flags()
			if flags.Changed("output") {
				cfg.Scan.OutputDir = outputDir
			}
			if flags.Changed("max-iterations") {
				cfg.Agent.MaxIterations = maxIterations
			}
			if flags.Changed("model") {
				cfg.Agent.LLM.Model = model
			}
			if flags.Changed("provider") {
				cfg.Agent.LLM.Provider = config.LLMProvider(provider)
			}
			if flags.Changed("headless") {
				cfg.Browser.Headless = headless
			}
			if flags.Changed("safe") {
				cfg.Scan.SafeMode = safeMode
			}
			if flags.Changed("export-csv") {
				cfg.Scan.ExportCSV = exportCSV
			}
			if flags.Changed("include-third-party") {
				cfg.Scan.IncludeThirdParty = includeThirdParty
			}
			if flags.Changed("proxy") {
				cfg.Network.ProxyEnabled = withProxy
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			scanID := uuid.New().String()
			logger.Info("Starting new scan",
				zap.String("scanID", scanID),
				zap.String("target", cfg.Scan.TargetURL),
				zap.Int("max_iterations", cfg.Agent.MaxIterations),
				zap.Bool("safe_mode", cfg.Scan.SafeMode),
			)

			client, err := llmclient.NewClient(ctx, cfg.Agent.LLM, logger)
			if err != nil {
				return fmt.Errorf("initializing reasoning client: %w", err)
			}

			mgr, err := browser.NewManager(ctx, *cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing browser: %w", err)
			}
			defer mgr.Close()

			disp := dispatcher.New(*cfg, logger)
			val := validator.New(cfg, client, logger)

			// The capture proxy is optional; the in-browser harvester is
			// the primary capture path.
			var g *errgroup.Group
			var stopProxy context.CancelFunc
			if cfg.Network.ProxyEnabled {
				proxy := netcapture.New(cfg, logger)
				var proxyCtx context.Context
				proxyCtx, stopProxy = context.WithCancel(ctx)
				g, _ = errgroup.WithContext(proxyCtx)
				g.Go(func() error { return proxy.Start(proxyCtx) })
			}

			orch := orchestrator.New(cfg, logger, client, mgr, disp, val)
			verdict, runErr := orch.Run(ctx)

			if stopProxy != nil {
				stopProxy()
				if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("Capture proxy shut down with error", zap.Error(err))
				}
			}

			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					logger.Warn("Scan aborted gracefully", zap.String("scanID", scanID))
					return fmt.Errorf("scan aborted by user signal")
				}
				return runErr
			}

			fmt.Printf("\nScan Complete. Scan ID: %s\n", scanID)
			if verdict.Proven {
				fmt.Println("A proven finding was recorded. See the report in the output directory.")
			} else {
				fmt.Println("No proven findings.")
			}
			fmt.Printf("Results saved to: %s\n", cfg.Scan.OutputDir)
			return nil
		},
	}

	scanCmd.Flags().StringVarP(&outputDir, "output", "o", "security_results", "output directory for results")
	scanCmd.Flags().IntVarP(&maxIterations, "max-iterations", "i", 6, "maximum agent iterations")
	scanCmd.Flags().StringVarP(&model, "model", "m", "", "reasoning model to use")
	scanCmd.Flags().StringVar(&provider, "provider", "", "reasoning provider (gemini or openai-compat)")
	scanCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	scanCmd.Flags().BoolVar(&safeMode, "safe", false, "read-only safe crawl mode (blocks state-changing actions and non-GET XHR/fetch)")
	scanCmd.Flags().BoolVar(&exportCSV, "export-csv", false, "in safe mode, also export endpoints.csv and forms.csv")
	scanCmd.Flags().BoolVar(&includeThirdParty, "include-third-party", false, "include third-party domains in safe crawl endpoints")
	scanCmd.Flags().BoolVar(&withProxy, "proxy", false, "run the recording forward proxy alongside the scan")

	return scanCmd
}
