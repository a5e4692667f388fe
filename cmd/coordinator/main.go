// Command coordinator runs the randomness coordinator, the pay-per-call
// wrapper, an optional in-process oracle and the read-only HTTP API.
package main

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/audit"
	"github.com/R3E-Network/vrf_coordinator/internal/callback"
	"github.com/R3E-Network/vrf_coordinator/internal/chain"
	"github.com/R3E-Network/vrf_coordinator/internal/config"
	"github.com/R3E-Network/vrf_coordinator/internal/coordinator"
	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/httpapi"
	"github.com/R3E-Network/vrf_coordinator/internal/journal"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/middleware"
	"github.com/R3E-Network/vrf_coordinator/internal/oracle"
	"github.com/R3E-Network/vrf_coordinator/internal/platform/migrations"
	"github.com/R3E-Network/vrf_coordinator/internal/settlement"
	"github.com/R3E-Network/vrf_coordinator/internal/storage/memory"
	"github.com/R3E-Network/vrf_coordinator/internal/wrapper"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.LoadFromEnv(cfg, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "load environment: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("vrf-coordinator", logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("coordinator stopped")
	}
}

type services struct {
	operator util.Uint160
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	chain    chain.Source
	journal  *journal.Journal
	settle   *settlement.Memory
	coord    *coordinator.Coordinator
	prover   *crypto.Prover
	log      *logger.Logger
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	operator, err := cfg.Coordinator.OperatorAddress()
	if err != nil {
		return err
	}
	s := &services{
		operator: operator,
		clock:    clockwork.NewRealClock(),
		metrics:  metrics.New(),
		settle:   settlement.NewMemory(),
		log:      log,
	}

	if s.chain, err = newChainSource(ctx, cfg.Chain, s.clock, log); err != nil {
		return err
	}

	events := journal.NewMemory(10_000)
	sinks := []journal.Sink{events, journal.NewLog(log.Named("events"))}
	var startSeq uint64
	if cfg.Database.DSN != "" {
		db, pg, seq, err := openJournal(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		sinks = append(sinks, pg)
		startSeq = seq
		log.WithField("start_seq", seq).Info("postgres journal attached")
	}
	s.journal = journal.New(journal.Config{
		StartSeq: startSeq,
		Clock:    s.clock,
		Logger:   log.Named("journal"),
		Metrics:  s.metrics,
		Sinks:    sinks,
	})

	store := memory.New()
	s.coord, err = coordinator.New(coordinator.Config{
		Operator:     operator,
		MaxConsumers: cfg.Coordinator.MaxConsumers,
		Store:        store,
		Chain:        s.chain,
		Verifier:     crypto.NewSignatureVerifier(),
		Settlement:   s.settle,
		Dispatcher:   callback.NewDispatcher(cfg.Coordinator.CallbackTimeout, log.Named("callback")),
		Publisher:    s.journal,
		Metrics:      s.metrics,
		Logger:       log.Named("coordinator"),
	})
	if err != nil {
		return err
	}
	if err := s.coord.SetConfig(ctx, operator, cfg.Coordinator.Global()); err != nil {
		return fmt.Errorf("apply coordinator config: %w", err)
	}

	if cfg.Oracle.WIF != "" {
		if err := s.startOracle(ctx, cfg.Oracle); err != nil {
			return err
		}
	}

	var w *wrapper.Wrapper
	if cfg.Wrapper.Enabled {
		if w, err = s.startWrapper(ctx, cfg.Wrapper); err != nil {
			return err
		}
	}

	auditor := audit.New(audit.Config{Store: store, Clock: s.clock, Metrics: s.metrics, Logger: log.Named("audit")})
	if err := auditor.Start(ctx, cfg.Audit.Schedule); err != nil {
		return err
	}
	defer auditor.Stop()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow, cfg.Server.RateBurst, log.Named("http"))
	go s.every(ctx, time.Minute, limiter.Cleanup)

	handler := httpapi.NewHandler(httpapi.Config{
		Coordinator: s.coord,
		Wrapper:     w,
		Events:      events,
		Auditor:     auditor,
		Metrics:     s.metrics,
		RateLimiter: limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log.Named("http"),
	})
	return serve(ctx, cfg.Server, handler, log)
}

func (s *services) startOracle(ctx context.Context, cfg config.OracleConfig) error {
	key, err := keys.NewPrivateKeyFromWIF(cfg.WIF)
	if err != nil {
		return fmt.Errorf("oracle key: %w", err)
	}
	s.prover = crypto.NewProver(key)
	if err := s.coord.RegisterProvingKey(ctx, s.operator, s.prover.Address(), s.prover.PublicKey(), cfg.MaxGasPrice); err != nil {
		return fmt.Errorf("register oracle key: %w", err)
	}
	f, err := oracle.New(oracle.Config{
		Coordinator: s.coord,
		Chain:       s.chain,
		Prover:      s.prover,
		GasPrice:    cfg.GasPrice,
		Interval:    cfg.Interval,
		Clock:       s.clock,
		Logger:      s.log.Named("oracle"),
	})
	if err != nil {
		return err
	}
	s.journal.AddSink(f)
	go f.Run(ctx)
	return nil
}

func (s *services) startWrapper(ctx context.Context, cfg config.WrapperConfig) (*wrapper.Wrapper, error) {
	addr, err := cfg.WrapperAddress()
	if err != nil {
		return nil, err
	}
	var fallback util.Uint256
	if s.prover != nil {
		fallback = s.prover.KeyHash()
	}
	rec, err := cfg.Record(fallback)
	if err != nil {
		return nil, err
	}

	w, err := wrapper.New(ctx, wrapper.Config{
		Address:     addr,
		Operator:    s.operator,
		Coordinator: s.coord,
		Store:       memory.New(),
		Settlement:  s.settle,
		Publisher:   s.journal,
		Metrics:     s.metrics,
		Logger:      s.log.Named("wrapper"),
	})
	if err != nil {
		return nil, err
	}
	if err := w.SetConfig(ctx, s.operator, rec); err != nil {
		return nil, fmt.Errorf("apply wrapper config: %w", err)
	}
	if cfg.Prefund > 0 {
		subID, err := w.SubscriptionID(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.coord.Fund(ctx, subID, cfg.Prefund, cfg.Prefund); err != nil {
			return nil, fmt.Errorf("prefund wrapper: %w", err)
		}
	}
	s.log.WithField("address", addr.StringLE()).Info("wrapper deployed")
	return w, nil
}

func (s *services) every(ctx context.Context, d time.Duration, fn func()) {
	ticker := s.clock.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			fn()
		}
	}
}

// newChainSource dials the Neo RPC node, or runs a local counter that
// advances once per block interval.
func newChainSource(ctx context.Context, cfg config.ChainConfig, clock clockwork.Clock, log *logger.Logger) (chain.Source, error) {
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(chain.Config{RPCURL: cfg.RPCURL, Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		height, err := client.BlockHeight(ctx)
		if err != nil {
			return nil, fmt.Errorf("reach neo rpc: %w", err)
		}
		log.WithField("height", height).WithField("rpc", cfg.RPCURL).Info("neo rpc connected")
		return client, nil
	}

	salt := binary.BigEndian.AppendUint64(nil, uint64(clock.Now().UnixNano()))
	counter := chain.NewCounter(cfg.HashWindow, salt)
	go func() {
		ticker := clock.NewTicker(cfg.BlockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				counter.Advance(1)
			}
		}
	}()
	log.WithField("interval", cfg.BlockInterval).Info("local block counter running")
	return counter, nil
}

func openJournal(ctx context.Context, dsn string) (*sql.DB, *journal.Postgres, uint64, error) {
	db, err := journal.Open(ctx, dsn)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, nil, 0, fmt.Errorf("apply migrations: %w", err)
	}
	pg := journal.NewPostgres(db)
	seq, err := pg.LastSeq(ctx)
	if err != nil {
		db.Close()
		return nil, nil, 0, err
	}
	return db, pg, seq, nil
}

func serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, log *logger.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
