package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/poolsight/poolsight/internal/ingest"
	"github.com/poolsight/poolsight/pkg/config"
	"github.com/poolsight/poolsight/pkg/export"
	"github.com/poolsight/poolsight/pkg/identity"
	"github.com/poolsight/poolsight/pkg/logger"
	"github.com/poolsight/poolsight/pkg/tracker"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "poolsight",
		Short: "Poolsight - pooled resource lifecycle tracking",
		Long: `Poolsight tracks the runtime lifecycle of pooled and non-pooled reusable
resource instances and derives health, efficiency, and leak metrics from it.
It ingests host framework events, classifies every disposal, and serves the
resulting metrics over prometheus and JSON endpoints.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("poolsight v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newServeCmd())
	root.AddCommand(newSimulateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration: defaults, then the YAML
// file if given, then POOLSIGHT_* environment overrides bound via viper.
func loadConfig(configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	v := viper.New()
	v.SetEnvPrefix("POOLSIGHT")
	v.AutomaticEnv()
	if addr := v.GetString("LISTEN_ADDR"); addr != "" {
		cfg.Export.ListenAddr = addr
	}
	if level := v.GetString("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildTracker(cfg *config.Config, log *zap.Logger) (*tracker.Tracker, error) {
	return tracker.New(tracker.Options{
		ActivityLogCapacity:    cfg.Tracking.ActivityLogCapacity,
		EnableDurationTracking: cfg.Tracking.EnableDurationTracking,
		RentalKeyCacheSize:     cfg.Tracking.RentalKeyCacheSize,
		LeakThreshold:          cfg.Tracking.LeakThreshold,
		DefaultMaxPoolSize:     cfg.Tracking.DefaultMaxPoolSize,
		MaxPoolSizes:           cfg.Tracking.MaxPoolSizes,
		Logger:                 log.Named("tracker"),
	})
}

func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics for an event-fed tracker",
		Long: `Start the export surface: prometheus metrics on /metrics and JSON
snapshots on /debug/pools and /debug/activity. The tracker is fed through
the ingest boundary by the embedding host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}

			if err := logger.Init(logger.Config{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
				Encoding:    cfg.Logging.Encoding,
			}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.Get()

			trk, err := buildTracker(cfg, log)
			if err != nil {
				return err
			}

			srv, err := export.NewServer(cfg.Export.ListenAddr, cfg.Export.Namespace, trk, log.Named("export"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var configFile string
	var workers, rentals int
	var leakEvery int

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a synthetic pooled workload and print the snapshots",
		Long: `Run a synthetic workload through the ingest boundary: pooled instances
are created, rented, used, returned, and disposed across concurrent
workers, with an optional leak rate. Prints the resulting snapshots as
JSON. Useful for smoke-testing the wiring end to end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if err := logger.Init(logger.Config{
				Level:       cfg.Logging.Level,
				Development: cfg.Logging.Development,
				Encoding:    cfg.Logging.Encoding,
			}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.Get()

			trk, err := buildTracker(cfg, log)
			if err != nil {
				return err
			}
			dispatcher, err := ingest.NewDispatcher(trk, log.Named("ingest"))
			if err != nil {
				return err
			}

			runSimulation(dispatcher, workers, rentals, leakEvery)

			out, err := json.MarshalIndent(trk.Snapshots(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Concurrent simulated workers")
	cmd.Flags().IntVar(&rentals, "rentals", 1000, "Rental cycles per worker")
	cmd.Flags().IntVar(&leakEvery, "leak-every", 0, "Leak one instance every N rentals (0 disables)")
	return cmd
}

// runSimulation emulates the host framework: each worker owns one pooled
// physical instance and cycles it through init/operate/return, with an
// occasional leaked disposal when leakEvery is set.
func runSimulation(d *ingest.Dispatcher, workers, rentals, leakEvery int) {
	const typeName = "simulated.OrderContext"

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker))) //nolint:gosec // simulation only

			id := identity.NewInstanceID()
			var lease int64
			for r := 0; r < rentals; r++ {
				d.Handle(ingest.Event{
					Kind: ingest.InstanceInitialized, TypeName: typeName,
					Instance: id, Lease: lease, Pooled: true,
				})
				// Several operations inside one rental cycle; only the
				// first marks the rent.
				for op := 0; op < 1+rng.Intn(4); op++ {
					d.Handle(ingest.Event{
						Kind: ingest.OperationExecuting, TypeName: typeName,
						Instance: id, Lease: lease,
					})
				}

				if leakEvery > 0 && (r+1)%leakEvery == 0 {
					// Dispose without return: a leak, plus a replacement
					// instance for the next cycle.
					d.Handle(ingest.Event{
						Kind: ingest.InstanceDisposed, TypeName: typeName,
						Instance: id, Lease: lease, Pooled: true,
					})
					id = identity.NewInstanceID()
					lease = 0
					continue
				}

				if cb := d.ReturnCallback(id); cb != nil {
					cb()
				}
				lease++
			}
			d.Handle(ingest.Event{
				Kind: ingest.InstanceDisposed, TypeName: typeName,
				Instance: id, Lease: lease, Pooled: true,
			})
		}(w)
	}
	wg.Wait()
}
