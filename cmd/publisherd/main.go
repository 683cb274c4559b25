// Command publisherd wires every collaborator package into a running
// daemon: load config, construct the signer/feed/siwe transport chains,
// seed chain registry state, arm the scheduler, and serve the HTTP admin
// and user-facing surface until told to stop.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainrelay/publisher/internal/abiresolver"
	"github.com/chainrelay/publisher/internal/api"
	"github.com/chainrelay/publisher/internal/apiserver"
	"github.com/chainrelay/publisher/internal/chainreg"
	"github.com/chainrelay/publisher/internal/config"
	"github.com/chainrelay/publisher/internal/feebridge"
	"github.com/chainrelay/publisher/internal/feed"
	"github.com/chainrelay/publisher/internal/ledger"
	"github.com/chainrelay/publisher/internal/metrics"
	"github.com/chainrelay/publisher/internal/publisher"
	"github.com/chainrelay/publisher/internal/signer"
	"github.com/chainrelay/publisher/internal/siwe"
	"github.com/chainrelay/publisher/internal/state"
	"github.com/chainrelay/publisher/internal/withdraw"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath, auditPath, snapshotPath string

	cmd := &cobra.Command{
		Use:   "publisherd",
		Short: "Run the on-chain publisher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, auditPath, snapshotPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the daemon's YAML configuration")
	cmd.Flags().StringVar(&auditPath, "audit-db", "audit.db", "path to the sqlite audit ledger")
	cmd.Flags().StringVar(&snapshotPath, "snapshot-db", "state.db", "path to the sqlite state snapshot restored on startup and written on shutdown")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd.SetContext(ctx)
	originalRunE := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		defer cancel()
		return originalRunE(c, args)
	}
	return cmd
}

func run(ctx context.Context, configPath, auditPath, snapshotPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("publisherd: load config: %w", err)
	}
	cfg.ApplyDefaults()

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("publisherd: build logger: %w", err)
	}
	defer logger.Sync()

	metricsReg := metrics.New()

	snapDB, err := state.SnapshotDB(snapshotPath)
	if err != nil {
		return fmt.Errorf("publisherd: open snapshot db: %w", err)
	}
	defer snapDB.Close()

	store, err := buildStore(ctx, cfg, snapDB, logger)
	if err != nil {
		return err
	}

	signerClient := signer.NewInstrumentedSigner(
		signer.NewHTTPClient(cfg.Publisher.SignerURL, store.Config().PMA, 10*time.Second),
		metricsReg,
	)

	feedClient, err := buildFeedClient(cfg.Publisher.FeedURL, metricsReg)
	if err != nil {
		return fmt.Errorf("publisherd: build feed client: %w", err)
	}

	siweVerifier, err := buildSIWEVerifier(cfg.Publisher.SIWEURL)
	if err != nil {
		return fmt.Errorf("publisherd: build siwe verifier: %w", err)
	}

	resolver, err := abiresolver.New()
	if err != nil {
		return fmt.Errorf("publisherd: build abi resolver: %w", err)
	}

	feeBridge := feebridge.New(feedClient)
	drivers := publisher.NewEthclientDriverSet(store.Chains, signerClient, logger, metricsReg)
	txFetcher := api.NewEthclientTxFetcher(store.Chains)
	withdrawExec := withdraw.NewExecutor(store.Withdrawals, logger)

	audit, err := ledger.Open(auditPath)
	if err != nil {
		return fmt.Errorf("publisherd: open audit ledger: %w", err)
	}
	defer audit.Close()

	scheduler := publisher.New(
		store,
		resolver,
		feeBridge,
		drivers,
		&publisher.FeedInputSource{Feed: feedClient},
		withdrawExec,
		store.Config().PMA,
		randomHandle,
		logger,
	).WithMetrics(metricsReg)

	svc := api.New(store, siweVerifier, resolver, txFetcher, scheduler, audit, logger)

	jwtSecret := []byte(cfg.Publisher.JWTSecret)
	if len(jwtSecret) == 0 {
		jwtSecret = randomSecret()
		logger.Warn("no jwt_secret configured, generated an ephemeral one; admin sessions will not survive a restart")
	}

	srv := apiserver.New(apiserver.Config{
		Addr:        cfg.Server.HTTPAddr,
		ReadTimeout: cfg.Server.ReadTimeout,
		JWTSecret:   jwtSecret,
	}, svc, metricsReg, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return runTicker(gctx, scheduler, store.Config().TimerFrequency.Int64(), logger) })

	runErr := g.Wait()

	saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := state.Save(saveCtx, snapDB, store); err != nil {
		logger.Error("snapshot save on shutdown failed", zap.Error(err))
	}

	return runErr
}

// buildStore restores the previous run's snapshot when one exists,
// otherwise seeds a fresh store from the configuration file. A restored
// snapshot wins over the config file's chain list: mutations made through
// the admin surface since the config was written are the operator's
// current intent.
func buildStore(ctx context.Context, cfg *config.Config, snapDB *sql.DB, logger *zap.Logger) (*state.Store, error) {
	restored, err := state.HasSnapshot(ctx, snapDB)
	if err != nil {
		return nil, fmt.Errorf("publisherd: probe snapshot: %w", err)
	}
	if restored {
		store, err := state.Load(ctx, snapDB)
		if err != nil {
			return nil, fmt.Errorf("publisherd: restore snapshot: %w", err)
		}
		logger.Info("restored state snapshot",
			zap.Int("chains", len(store.Chains.GetAll())))
		return store, nil
	}

	txFee, err := config.ParseBigInt(cfg.Publisher.TxFee)
	if err != nil {
		return nil, fmt.Errorf("publisherd: tx_fee: %w", err)
	}
	store := state.New(state.GlobalConfig{
		TxFee:           txFee,
		KeyName:         cfg.Publisher.KeyName,
		SubsLimitWallet: cfg.Publisher.SubsLimitWallet,
		SubsLimitTotal:  cfg.Publisher.SubsLimitTotal,
		TimerFrequency:  big.NewInt(cfg.Publisher.TimerFrequency),
		PMA:             common.HexToAddress(cfg.Publisher.PMA),
		Controllers:     cfg.Publisher.Controllers,
	}, randomHandle())

	for _, chainCfg := range cfg.Chains {
		minBalance, err := config.ParseBigInt(chainCfg.MinBalance)
		if err != nil {
			return nil, fmt.Errorf("publisherd: chain %d: min_balance: %w", chainCfg.ChainID, err)
		}
		var fee *big.Int
		if chainCfg.Fee != "" {
			fee, err = config.ParseBigInt(chainCfg.Fee)
			if err != nil {
				return nil, fmt.Errorf("publisherd: chain %d: fee: %w", chainCfg.ChainID, err)
			}
		}
		if err := store.AddChain(chainreg.AddRequest{
			ChainID:          big.NewInt(chainCfg.ChainID),
			RPC:              chainCfg.RPC,
			MinBalance:       minBalance,
			BlockGasLimit:    big.NewInt(chainCfg.BlockGasLimit),
			Fee:              fee,
			Symbol:           chainCfg.Symbol,
			MulticallAddress: common.HexToAddress(chainCfg.MulticallAddress),
		}); err != nil {
			return nil, fmt.Errorf("publisherd: chain %d: %w", chainCfg.ChainID, err)
		}
	}
	return store, nil
}

// runTicker drives Scheduler.Tick once per configured frequency, the
// process-level counterpart to the admin "execute_publisher_job" endpoint
// that fires the same Tick out of band.
func runTicker(ctx context.Context, scheduler *publisher.Scheduler, frequencySeconds int64, logger *zap.Logger) error {
	ticker := time.NewTicker(time.Duration(frequencySeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := scheduler.Tick(ctx, big.NewInt(now.Unix())); err != nil {
				logger.Warn("tick failed", zap.Error(err))
			}
		}
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func buildFeedClient(baseURL string, metricsReg *metrics.Registry) (feed.Client, error) {
	instrumented := feed.NewInstrumentedClient(feed.NewHTTPClient(baseURL, 5*time.Second), metricsReg)
	cached, err := feed.NewCachedClient(instrumented, 1024)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func buildSIWEVerifier(baseURL string) (siwe.Verifier, error) {
	if baseURL == "" {
		return siwe.NewLocalVerifier(), nil
	}
	return siwe.NewHTTPClient(baseURL, 5*time.Second), nil
}

func randomHandle() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%x", buf)
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return buf
}
