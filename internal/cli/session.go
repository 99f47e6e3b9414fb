package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/chanwallet/internal/chain"
	"github.com/roach88/chanwallet/internal/config"
	"github.com/roach88/chanwallet/internal/engine"
	"github.com/roach88/chanwallet/internal/pool"
	"github.com/roach88/chanwallet/internal/store"
	"github.com/roach88/chanwallet/internal/wallet"
)

// session is one command's view of the wallet: config, store, chain
// service, pool and the wallet built on them.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	memory *chain.Memory
	rpc    *chain.RPCService
	pool   *pool.Pool
	wallet *wallet.Wallet

	mu      sync.Mutex
	pending []*wallet.Response
}

// loadConfig merges the config file, environment and the flags of cmd.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v, opts.ConfigPath)
}

// openStore opens the configured database.
func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	return store.OpenDriver(cfg.Database.Driver, cfg.Database.DSN, store.WithLogger(logger))
}

// openSession wires a wallet from the merged configuration.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}
	signer, err := cfg.NewSigner()
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, store: st}

	var svc chain.Service
	if cfg.Chain.RPCURL != "" {
		s.rpc = chain.DialRPC(cfg.Chain.RPCURL, logger)
		svc = s.rpc
	} else {
		s.memory = chain.NewMemory(chain.WithLogger(logger))
		svc = s.memory
	}

	s.pool = pool.New(cfg.Pool.Size, pool.WithLogger(logger))
	s.wallet = wallet.New(st, signer, svc,
		wallet.WithPool(s.pool),
		wallet.WithLogger(logger),
		wallet.WithDefaultFundingStrategy(cfg.FundingStrategy()),
		wallet.WithEngineOptions(engine.WithMaxSteps(cfg.Engine.MaxSteps)),
		wallet.WithResponseHandler(s.collect),
	)
	logger.Debug("wallet ready",
		"address", signer.Address().Hex(),
		"driver", cfg.Database.Driver,
		"rpc", cfg.Chain.RPCURL != "",
		"pool_size", cfg.Pool.Size)
	return s, nil
}

// collect keeps responses produced by chain events.
func (s *session) collect(_ context.Context, resp *wallet.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, resp)
}

// settle delivers outstanding chain events and folds the responses they
// produced into resp.
func (s *session) settle(ctx context.Context, resp *wallet.Response) (*wallet.Response, error) {
	var err error
	switch {
	case s.memory != nil:
		err = s.memory.Flush(ctx)
	case s.rpc != nil:
		err = s.rpc.Poll(ctx)
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	merged := wallet.MergeResponses(append([]*wallet.Response{resp}, pending...)...)
	if err != nil {
		return merged, fmt.Errorf("chain events: %w", err)
	}
	return merged, nil
}

// Close releases everything the session opened.
func (s *session) Close() error {
	var errs []error
	if err := s.wallet.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.memory != nil {
		if err := s.memory.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.rpc != nil {
		if err := s.rpc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and prints its response. Failures
// from opening are command errors; failures from fn are classified.
func withSession(opts *RootOptions, cmd *cobra.Command, action string, fn func(ctx context.Context, s *session) (*wallet.Response, error)) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, cmd)
	if err != nil {
		code, _ := classify(err)
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open wallet", err)
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Error("error closing wallet", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := fn(ctx, s)
	if err != nil {
		return formatter.Fail(action+" failed", err)
	}
	resp, err = s.settle(ctx, resp)
	if err != nil {
		return formatter.Fail(action+" failed", err)
	}
	return printResponse(formatter, resp, opts.Outbox)
}
