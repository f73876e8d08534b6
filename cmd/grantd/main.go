package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"grantchain/config"
	"grantchain/core"
	"grantchain/core/events"
	"grantchain/core/genesis"
	"grantchain/core/state"
	"grantchain/crypto"
	"grantchain/indexer"
	"grantchain/observability/logging"
	"grantchain/observability/metrics"
	telemetry "grantchain/observability/otel"
	"grantchain/rpc"
	"grantchain/storage"
)

const (
	genesisPathEnv      = "GRANTCHAIN_GENESIS"
	allowAutogenesisEnv = "GRANTCHAIN_ALLOW_AUTOGENESIS"
	shutdownTimeout     = 10 * time.Second
)

// errNoGenesis is returned when the data dir is empty and nothing says how to
// initialise it.
var errNoGenesis = errors.New("no stored state and no genesis file; set GenesisFile or enable autogenesis")

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON or YAML file (overrides GRANTCHAIN_GENESIS and config GenesisFile)")
	allowAutogenesisFlag := flag.Bool("allow-autogenesis", false, "DEV ONLY: build a devnet genesis when no stored state exists")
	blockInterval := flag.Duration("block-interval", 0, "DEV ONLY: advance and commit one block per interval (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, *genesisFlag, *allowAutogenesisFlag, flagWasProvided("allow-autogenesis"), *blockInterval); err != nil {
		slog.Error("grantd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, genesisFlag string, allowFlag, allowFlagSet bool, blockInterval time.Duration) error {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return err
	}
	logger, closer := logging.SetupWithOptions(logging.Options{
		Service:    "grantd",
		Env:        cfg.Env,
		Level:      level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "grantd",
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	allowAutogenesis, err := resolveAllowAutogenesis(cfg.AllowAutogenesis, allowFlagSet, allowFlag, os.LookupEnv)
	if err != nil {
		return err
	}
	genesisPath := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := rpc.NewEventHub()
	emitters := events.Fanout{hub}
	var audit rpc.AuditLog
	if cfg.IndexerDSN != "" {
		gdb, err := indexer.Open(cfg.IndexerDSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		idx, err := indexer.New(gdb, logger)
		if err != nil {
			return fmt.Errorf("migrate indexer: %w", err)
		}
		defer idx.Close()
		logger.Info("audit indexer enabled", logging.DSN("dsn", cfg.IndexerDSN))
		emitters = append(emitters, idx)
		audit = idx
	}

	runtime, err := openRuntime(db, logger, emitters)
	if err != nil {
		return err
	}
	root, err := ensureGenesis(db, runtime, genesisPath, allowAutogenesis)
	if err != nil {
		return err
	}
	logger.Info("state ready", "network", cfg.NetworkName, "root", root.Hex())

	proxies, err := cfg.RateLimit.Proxies()
	if err != nil {
		return err
	}
	serverCfg := rpc.Config{
		RateLimit: rpc.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    proxies,
		},
		Tracing: cfg.Telemetry.Traces,
		Audit:   audit,
		Events:  hub,
	}
	if cfg.Auth.Enabled {
		secret, err := cfg.Auth.Secret(os.LookupEnv)
		if err != nil {
			return err
		}
		serverCfg.Submitter = runtime
		serverCfg.Auth = rpc.AuthConfig{Secret: secret, Issuer: cfg.Auth.Issuer, Audience: cfg.Auth.Audience}
		logger.Info("call api enabled", "issuer", cfg.Auth.Issuer, "secret", logging.RedactedValue)
	}
	server := rpc.NewServer(runtime, serverCfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()
	if blockInterval > 0 {
		go advanceBlocks(ctx, runtime, blockInterval, logger)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("query api shutdown", "error", err)
	}
	_, err = runtime.Commit()
	return err
}

// openRuntime opens the state machine with every accepted call and block
// change flushed to disk before it is acknowledged.
func openRuntime(db storage.Database, logger *slog.Logger, emitter events.Emitter) (*core.Runtime, error) {
	return core.NewRuntime(db,
		core.WithLogger(logger),
		core.WithEmitter(emitter),
		core.WithMetrics(metrics.Ledger()),
		core.WithCommitEveryCall(),
	)
}

// ensureGenesis applies a genesis document to a fresh database. A database
// that already has a head is left untouched.
func ensureGenesis(db storage.Database, runtime *core.Runtime, path string, allowAutogenesis bool) (common.Hash, error) {
	head, ok, err := state.ReadHead(db)
	if err != nil {
		return common.Hash{}, err
	}
	if ok {
		return head.Root, nil
	}
	var spec *genesis.GenesisSpec
	switch {
	case path != "":
		spec, err = genesis.LoadGenesisSpec(path)
		if err != nil {
			return common.Hash{}, err
		}
	case allowAutogenesis:
		spec = devnetSpec()
		if err := spec.Validate(); err != nil {
			return common.Hash{}, err
		}
	default:
		return common.Hash{}, errNoGenesis
	}
	return runtime.ApplyGenesis(spec.Resolved())
}

func devnetSpec() *genesis.GenesisSpec {
	return genesis.DevnetSpec(
		[][20]byte{crypto.DevAccount("alice")},
		[][20]byte{crypto.DevAccount("ferdie")},
		[][20]byte{crypto.DevAccount("bob"), crypto.DevAccount("charlie")},
		nil,
	)
}

func advanceBlocks(ctx context.Context, runtime *core.Runtime, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		height, err := runtime.Height()
		if err == nil {
			err = runtime.SetBlock(height + 1)
		}
		if err == nil {
			_, err = runtime.Commit()
		}
		if err != nil {
			logger.Error("advance block", "error", err)
		}
	}
}

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(cfgPath)
}

func resolveAllowAutogenesis(cfgValue bool, cliSet bool, cliValue bool, lookup envLookupFunc) (bool, error) {
	allow := cfgValue
	if lookup != nil {
		if value, ok := lookup(allowAutogenesisEnv); ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				parsed, err := strconv.ParseBool(trimmed)
				if err != nil {
					return false, fmt.Errorf("invalid %s value %q: %w", allowAutogenesisEnv, trimmed, err)
				}
				allow = parsed
			}
		}
	}
	if cliSet {
		allow = cliValue
	}
	return allow, nil
}

func flagWasProvided(name string) bool {
	provided := false
	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == name {
			provided = true
		}
	})
	return provided
}
