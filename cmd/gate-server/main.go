package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Portunus/gate/internal/auth"
	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/config"
	"github.com/BrandonDHaskell/Portunus/gate/internal/db"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/barrier"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store/postgres"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/gate/internal/health"
	"github.com/BrandonDHaskell/Portunus/gate/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/gate/internal/obs"
)

type options struct {
	seedDev    bool
	issueToken int64
	tokenTTL   time.Duration
}

func main() {
	logger := log.New(os.Stdout, "gate-server ", log.LstdFlags|log.LUTC)

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	cfg := config.FromEnv()

	opts, err := parseFlags(&cfg, os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatalf("flags: %v", err)
	}

	if err := run(cfg, opts, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

// parseFlags lets the command line override the environment.
func parseFlags(cfg *config.Config, args []string) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("gate-server", pflag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "storage driver: sqlite or postgres")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database file")
	fs.BoolVar(&opts.seedDev, "seed-dev", false, "insert demo departments, users and sensors (dev only)")
	fs.Int64Var(&opts.issueToken, "issue-token", 0, "print a bearer token for this user id and exit")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of tokens printed by --issue-token")

	err := fs.Parse(args)
	return opts, err
}

func run(cfg config.Config, opts options, logger *log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.AuthSecret)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if opts.issueToken > 0 {
		token, err := verifier.IssueToken(opts.issueToken, opts.tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(token)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, dialect, err := db.Open(ctx, db.Config{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		DSN:    cfg.PGDSN,
		Env:    cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()
	logger.Printf("storage ready driver=%s", dialect)

	if opts.seedDev {
		if cfg.Env == "prod" {
			return errors.New("--seed-dev is refused in prod")
		}
		if err := db.SeedDev(ctx, conn, dialect); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Printf("dev seed applied")
	}

	stores, closeStores := openStores(conn, dialect)
	defer closeStores()

	clk := clock.Real()
	metrics := obs.New()

	gate := barrier.New(clk, cfg.AutoClose, logger, barrier.WithObserver(metrics.ObserveBarrier))
	defer gate.Shutdown()

	accessSvc := service.NewAccessService(stores.sensors, stores.events, gate, clk, logger, metrics)
	commandSvc := service.NewCommandService(service.CommandServiceConfig{
		Commands: stores.commands,
		Events:   stores.events,
		Identity: service.NewIdentityResolver(stores.users),
		Barrier:  gate,
		Clock:    clk,
		TTL:      cfg.CommandTTL,
		Logger:   logger,
		Metrics:  metrics,
	})

	sweeper := service.NewCommandSweeper(stores.commands, clk, cfg.SweepInterval, logger, metrics)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	var healthSrv *health.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		healthSrv = health.New(logger)
		go healthSrv.Watch(ctx, 15*time.Second, conn.PingContext)
		go func() {
			logger.Printf("grpc health listening on %s", cfg.GRPCAddr)
			if err := healthSrv.Serve(lis); err != nil {
				logger.Printf("grpc server error: %v", err)
			}
		}()
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.HTTPAddr,
		Clock:          clk,
		AccessService:  accessSvc,
		CommandService: commandSvc,
		Barrier:        gate,
		Verifier:       verifier,
		Metrics:        metrics,
		RateLimit: httpapi.RateLimit{
			PerSecond: cfg.RateLimitPerSecond,
			Burst:     cfg.RateLimitBurst,
		},
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	if healthSrv != nil {
		healthSrv.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type gateStores struct {
	sensors  store.SensorStore
	users    store.UserStore
	events   store.AccessEventStore
	commands store.CommandStore
}

// openStores picks the store implementations for dialect. SQLite writes
// are funnelled through one Worker; the returned func closes it.
func openStores(conn *sql.DB, dialect db.Dialect) (gateStores, func()) {
	if dialect == db.DialectPostgres {
		pg := postgres.New(conn)
		return gateStores{sensors: pg, users: pg, events: pg, commands: pg}, func() {}
	}

	writer := db.NewWorker(conn)
	registry := sqlite.NewRegistry(conn, writer)
	return gateStores{
		sensors:  registry,
		users:    registry,
		events:   sqlite.NewAccessEventStore(conn, writer),
		commands: sqlite.NewCommandStore(conn, writer),
	}, writer.Close
}
