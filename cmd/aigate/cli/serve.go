package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aigate/aigate/internal/config"
	"github.com/aigate/aigate/internal/inference"
	"github.com/aigate/aigate/internal/server"
	"github.com/aigate/aigate/internal/service"
	"github.com/aigate/aigate/internal/telemetry"
)

const banner = `
    _    ___ ____       _
   / \  |_ _/ ___| __ _| |_ ___
  / _ \  | | |  _ / _' | __/ _ \
 / ___ \ | | |_| | (_| | ||  __/
/_/   \_\___\____|\__,_|\__\___|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AIGate API server",
		Long:  "Start the HTTP server that exposes the authenticated inference and key management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8000, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// 1. Open the key store (SQLite)
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	logger.Info("key store opened", "path", resolveDBPath())

	// 2. Initialize the model backend registry. Backends register themselves
	// at startup; until one is loaded the inference endpoints answer 503.
	registry := inference.NewRegistry()
	if registry.Count() == 0 {
		logger.Warn("no model backends loaded, inference endpoints will return 503")
	}

	// 3. Auth and key services share the store
	authSvc := service.NewAuthService(st, logger)
	keySvc := service.NewKeyService(st, logger)

	// 4. First-run check: warn when no admin key exists yet
	stats, err := st.GlobalStats(cmdCtx())
	if err != nil {
		logger.Warn("failed to check for admin keys", "error", err)
	} else if stats.AdminKeys == 0 {
		logger.Warn("no admin key found - run: aigate key init-admin")
	}

	// 5. Build the HTTP server. File settings come through the config
	// package; flags win for host and port.
	appCfg := config.Default()
	if file := viper.ConfigFileUsed(); file != "" {
		appCfg, err = config.Load(file)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	shutdownTimeout, err := time.ParseDuration(appCfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 30 * time.Second
	}
	srvCfg := server.Config{
		Host:               host,
		Port:               port,
		ShutdownTimeout:    shutdownTimeout,
		CORSOrigins:        appCfg.Server.CORS.Origins,
		APIKeyHeader:       appCfg.Auth.APIKeyHeader,
		RateLimitPerMinute: appCfg.RateLimit.RequestsPerMinute,
	}
	server.Version = versionString()

	srv := server.New(srvCfg, registry, st, authSvc, keySvc, logger)

	// 6. Anonymous telemetry (AIGATE_TELEMETRY=0 to disable)
	tracker := telemetry.New(cmdCtx(), st, func() telemetry.Properties {
		props := telemetry.Properties{
			Version:      versionString(),
			GoVersion:    runtime.Version(),
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			ModelsLoaded: registry.Loaded(),
		}
		if gs, err := st.GlobalStats(cmdCtx()); err == nil {
			props.TotalKeys = int(gs.TotalKeys)
			props.ActiveKeys = int(gs.ActiveKeys)
			props.AdminKeys = int(gs.AdminKeys)
			props.TotalRequests = gs.TotalRequests
		}
		return props
	})
	if tracker != nil {
		telemetry.PrintNotice()
		tracker.Start()
		defer tracker.Shutdown()
	}

	fmt.Printf("→ AIGate %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ API base:   http://%s:%d/v1\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/health\n", host, port)
	fmt.Printf("→ Model backends loaded: %d\n", registry.Count())
	fmt.Println()

	return srv.ListenAndServe()
}

// cmdCtx returns a background context for CLI initialization.
func cmdCtx() context.Context {
	return context.Background()
}
