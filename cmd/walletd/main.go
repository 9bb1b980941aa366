package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fjord-labs/walletcore/internal/bundler"
	"github.com/fjord-labs/walletcore/internal/coins"
	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/config"
	"github.com/fjord-labs/walletcore/internal/db"
	"github.com/fjord-labs/walletcore/internal/index"
	"github.com/fjord-labs/walletcore/internal/keys"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/metrics"
	"github.com/fjord-labs/walletcore/internal/names"
	"github.com/fjord-labs/walletcore/internal/notes"
	"github.com/fjord-labs/walletcore/internal/notify"
	"github.com/fjord-labs/walletcore/internal/requests"
	"github.com/fjord-labs/walletcore/internal/rpc"
	"github.com/fjord-labs/walletcore/internal/store"
	"github.com/fjord-labs/walletcore/internal/store/migrations"
	"github.com/fjord-labs/walletcore/internal/watcher"
)

const version = "1.0.0"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "walletd",
	Short: "walletcore - wallet indexing and transaction submission daemon",
	Long: `walletd follows the decoded event tables the extraction pipeline maintains,
derives per-account wallet state (names, keys, notes, requests, coin
transfers) and submits transactions reliably on behalf of wallet accounts.`,
	Version: version,
	RunE:    run,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run derived-table migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log := logger.NewComponentLoggerFromConfig(wcommon.ComponentStore, cfg.Logging)

		conn, err := db.New(cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer conn.Close()

		return migrations.Run(log, conn, cfg.Store.Driver)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
	rootCmd.AddCommand(migrateCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(wcommon.ComponentWatcher, cfg.Logging)
	base := logger.GetDefaultLogger()
	defer base.Close()

	log.Infow("starting walletd", "version", version, "chain_id", cfg.Chain.ChainID)

	conn, err := db.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer conn.Close()

	if err := migrations.Run(log, conn, cfg.Store.Driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	st := store.New(conn, cfg.Store.Driver, cfg.Chain.ChainID, base)

	chainClient, err := rpc.NewClient(ctx, cfg.Chain, base)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer chainClient.Close()

	// domain indexers, wired in dependency layers
	nameIdx := names.New(st, base)
	keyIdx := keys.New(st, base)
	noteIdx := notes.New(st, cfg.Chain.HomeCoinDecimals, base)
	requestIdx := requests.New(st, base)
	bridgeIdx := coins.NewBridge(st, nameIdx, base)
	homeIdx := coins.NewHome(st, nameIdx, noteIdx, requestIdx,
		cfg.Chain.HomeCoin.Address, cfg.Bundler.Paymaster.Address, base)
	foreignIdx := coins.NewForeign(st, nameIdx, bridgeIdx, cfg.Chain.HomeCoin.Address, base)
	ethIdx := coins.NewEth(st, nameIdx, base)

	if err := foreignIdx.Init(ctx); err != nil {
		return fmt.Errorf("failed to restore pending swap ledger: %w", err)
	}

	w := watcher.New(cfg.Watcher, st, chainClient, base)
	// bridge must land its mints a layer before the foreign indexer reads them
	w.Add(
		[]index.Indexer{nameIdx, keyIdx},
		[]index.Indexer{noteIdx, requestIdx, bridgeIdx},
		[]index.Indexer{homeIdx, foreignIdx},
	)
	w.AddSlow(ethIdx)

	// submission path
	submitter := rpc.NewSubmitter(chainClient, cfg.Submitter, cfg.Chain.ChainID, base)
	var opSender *bundler.Sender
	if cfg.Bundler.RPCURL != "" {
		bundlerClient, err := bundler.NewClient(ctx, cfg.Bundler.RPCURL)
		if err != nil {
			return fmt.Errorf("failed to create bundler client: %w", err)
		}
		defer bundlerClient.Close()

		estimator, err := bundler.NewEstimator(chainClient, bundlerClient, cfg.Bundler, base)
		if err != nil {
			return fmt.Errorf("failed to create fee estimator: %w", err)
		}
		opSender, err = bundler.NewSender(submitter, estimator, cfg.Bundler.EntryPoint.Address, base)
		if err != nil {
			return fmt.Errorf("failed to create user-op sender: %w", err)
		}
		log.Infow("user-op submission enabled",
			"entry_point", cfg.Bundler.EntryPoint.Hex(), "bundler", cfg.Bundler.RPCURL)
	}

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics, func() any {
			return struct {
				Watcher watcher.Status `json:"watcher"`
				UserOps bool           `json:"user_ops"`
			}{w.Status(ctx), opSender != nil}
		})
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnw("failed to stop metrics server", "err", err)
			}
		}()
		log.Infow("metrics server started",
			"addr", cfg.Metrics.ListenAddress, "path", cfg.Metrics.Path)
	}

	log.Infow("catching up with upstream cursor")
	if err := w.Init(ctx); err != nil {
		return fmt.Errorf("catch-up failed: %w", err)
	}

	var wakeup watcher.Wakeup
	if cfg.Notify != nil {
		listener := notify.New(cfg.Notify, base)
		defer listener.Close()
		listener.Start(ctx)
		wakeup = listener
	}

	w.Watch(ctx, wakeup)

	log.Infow("walletd stopped")
	return nil
}
