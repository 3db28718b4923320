package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/engine"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
	"github.com/weftlang/weft/pkg/server"
	"github.com/weftlang/weft/pkg/stores"
	"github.com/weftlang/weft/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	var (
		configPath     string
		addr           string
		dataDir        string
		dbPath         string
		maxDocBytes    int64
		requestTimeout time.Duration
		logLevel       string
		otlpEndpoint   string
		codecs         []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the weft runner service",
		Long: `Start the runner service: an HTTP server that executes documents for
authenticated accounts, stores published packages, and keeps run history.

The service logs JSON, exposes Prometheus metrics on /metrics and a health
check on /healthz, and records traces when an OTLP endpoint is configured.
Accounts live in a SQLite database; bootstrap the first one with weft user
add before starting. Flags override values from the config file.`,
		Example: `  # Serve on the default port with local storage
  weft serve --data-dir /var/lib/weft

  # Serve from a config file, exporting traces to a collector
  weft serve --config /etc/weft/serve.yaml --otlp-endpoint collector.internal:4317`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fileCfg := &server.FileConfig{
				Addr:             addr,
				DataDir:          dataDir,
				DBPath:           dbPath,
				MaxDocumentBytes: maxDocBytes,
				RequestTimeout:   requestTimeout,
				Telemetry:        telemetry.ServerConfig(),
			}
			if configPath != "" {
				loaded, err := server.LoadConfig(configPath)
				if err != nil {
					return err
				}
				fileCfg = loaded
				if cmd.Flags().Changed("addr") {
					fileCfg.Addr = addr
				}
				if cmd.Flags().Changed("data-dir") {
					fileCfg.DataDir = dataDir
				}
				if cmd.Flags().Changed("db") {
					fileCfg.DBPath = dbPath
				}
			}
			tcfg := fileCfg.Telemetry
			if cmd.Flags().Changed("log-level") || tcfg.Logging.Level == "" {
				tcfg.Logging.Level = logLevel
			}
			if otlpEndpoint != "" {
				tcfg.Tracing.Exporter = "otlp"
				tcfg.Tracing.Endpoint = otlpEndpoint
			}
			if err := tcfg.Validate(); err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(tcfg.Logging)
			if err != nil {
				return err
			}
			tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := tracer.Shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("Failed to shut down tracer")
				}
			}()
			metrics := telemetry.NewMetrics(tcfg.Metrics)

			store, err := stores.NewSQLiteStore(stores.Config{Path: fileCfg.DBPath})
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			reg := format.NewRegistry()
			closeCodecs, err := loadWASMCodecs(cmd.Context(), reg, codecs)
			if err != nil {
				return err
			}
			defer closeCodecs()

			pipeline := engine.NewPipeline(logger, reg, fetch.NewClient(0, logger))
			srv := server.NewServer(fileCfg.ServerConfig(), logger, pipeline, store, metrics)

			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML service configuration file")
	cmd.Flags().StringVar(&addr, "addr", ":4040", "listen address")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "root directory for registry storage")
	cmd.Flags().StringVar(&dbPath, "db", "weft.db", "account and run history database path")
	cmd.Flags().Int64Var(&maxDocBytes, "max-document-bytes", 10<<20, "maximum accepted document size")
	cmd.Flags().DurationVar(&requestTimeout, "request-timeout", 5*time.Minute, "timeout per run request")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for trace export")
	cmd.Flags().StringSliceVar(&codecs, "codec", nil, "external WASM codec plugins (id=path.wasm)")

	return cmd
}
