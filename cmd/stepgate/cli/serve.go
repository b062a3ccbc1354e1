package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aqubia/stepgate/internal/audit"
	"github.com/aqubia/stepgate/internal/config"
	"github.com/aqubia/stepgate/internal/flow"
	"github.com/aqubia/stepgate/internal/gateway"
	"github.com/aqubia/stepgate/internal/notify"
	"github.com/aqubia/stepgate/internal/screen"
	"github.com/spf13/cobra"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the approval gateway",
	Long: `Start the StepGate HTTP gateway: the submission endpoint, the status
endpoint polled by clients, and the operator-channel webhook.`,
	Example: `  stepgate serve -c stepgate.yaml
  STEPGATE_BOT_TOKEN=123:abc stepgate serve -c stepgate.yaml -l 0.0.0.0:8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListenAddr, "listen", "l", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("creating screening engine: %w", err)
	}

	auditStore, err := audit.NewJSONLStore(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("creating audit store: %w", err)
	}
	defer auditStore.Close()

	store := flow.NewStore(cfg.FlowTTL, logger)

	var notifier notify.Notifier
	if cfg.Telegram.Enabled() {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, logger)
	} else {
		logger.Warn("no operator channel configured; notifications will be logged only")
		notifier = notify.NewLogNotifier(logger)
	}

	var limiter *gateway.RateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = gateway.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	srv := gateway.NewServer(gateway.Options{
		Addr:              cfg.ListenAddr,
		Store:             store,
		Engine:            engine,
		Notifier:          notifier,
		Audit:             auditStore,
		Logger:            logger,
		FallbackSynthesis: cfg.FallbackSynthesis,
		RateLimit:         limiter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	sweeper := flow.NewSweeper(store, cfg.SweepInterval, logger)
	sweeper.OnExpired = srv.OnSweepExpired
	go sweeper.Run(ctx)

	return srv.ListenAndServe(ctx)
}

func buildEngine(cfg *config.Config) (screen.Engine, error) {
	if cfg.OPAPolicy != "" {
		return screen.NewOPAEngine(cfg.OPAPolicy)
	}
	if cfg.Path != "" {
		return screen.NewYAMLEngine(cfg.Path)
	}
	return screen.NewYAMLEngineFromFile(cfg.File)
}
