// Package main starts the feature host: it opens storage, initialises the
// features, and serves execution contexts over mTLS HTTP and, optionally,
// NATS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/broadcast"
	"github.com/atinyakov/gnoixus/internal/certgen"
	"github.com/atinyakov/gnoixus/internal/config"
	"github.com/atinyakov/gnoixus/internal/db"
	"github.com/atinyakov/gnoixus/internal/dispatch"
	"github.com/atinyakov/gnoixus/internal/feature"
	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/logger"
	"github.com/atinyakov/gnoixus/internal/repository"
	"github.com/atinyakov/gnoixus/internal/server/handler/http"
	"github.com/atinyakov/gnoixus/internal/service"
	"github.com/atinyakov/gnoixus/internal/vault"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// contextStore is the registry persistence, pruned by the stale context cleaner.
type contextStore interface {
	service.ContextRepository
	db.Pruner
}

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log.With(zap.String("host", options.ContextID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: PostgreSQL when a DSN is given, else a JSON file, else memory.
	var (
		store    kv.Store
		contexts contextStore
	)
	switch {
	case options.DatabaseDSN != "":
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()
		store = repository.NewPostgresKV(postgresDB)
		contexts = repository.NewPostgresContextRepository(postgresDB)
	case options.StoragePath != "":
		store = kv.NewFile(options.StoragePath)
		contexts = repository.NewMemoryContextRepository()
	default:
		zapLogger.Warn("no storage configured, state is kept in memory")
		store = kv.NewMemory()
		contexts = repository.NewMemoryContextRepository()
	}

	if options.ContextRetention > 0 {
		db.StartStaleContextCleaner(ctx, contexts, time.Hour, options.ContextRetention, zapLogger)
	}
	contextService := service.NewContextService(contexts, options.ContextRetention)

	// TLS material shared by the listener and the outgoing HTTP transport.
	authority, err := certgen.LoadAuthority(options.CertDir)
	if err != nil {
		zapLogger.Fatal("failed to load CA", zap.Error(err))
	}
	cert, err := tls.LoadX509KeyPair(
		filepath.Join(options.CertDir, certgen.ServerCertFile),
		filepath.Join(options.CertDir, certgen.ServerKeyFile),
	)
	if err != nil {
		zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
	}
	caPool := x509.NewCertPool()
	caPool.AddCert(authority.Cert)

	// Cross-context transport: NATS request/reply when configured, else HTTPS
	// callbacks to the endpoint each context registered.
	var transport broadcast.Transport = broadcast.HTTPTransport{
		Client: &nethttp.Client{
			Timeout: broadcast.DefaultSendTimeout,
			Transport: &nethttp.Transport{TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				RootCAs:      caPool,
				MinVersion:   tls.VersionTLS12,
			}},
		},
	}
	var nc *nats.Conn
	if options.NATSURL != "" {
		nc, err = broadcast.Connect(options.NATSURL, "gnoixus-"+options.ContextID, zapLogger)
		if err != nil {
			zapLogger.Fatal("cannot connect to NATS", zap.Error(err))
		}
		transport = broadcast.NewNATSTransport(nc, options.ContextID)
		defer func() { _ = nc.Drain() }()
	}
	notifier := broadcast.New(contextService, transport, options.ContextID, zapLogger)

	// Features, in registration order.
	v := vault.New(store,
		vault.WithLockDuration(options.LockDuration),
		vault.WithLogger(zapLogger),
	)
	registry := feature.NewRegistry(store, notifier, zapLogger,
		feature.NewPasswordManager(store, v, zapLogger),
		feature.NewGitHubSearch(store, zapLogger, feature.WithAPIBase(options.GitHubAPI)),
		feature.NewDarkMode(store, zapLogger),
		feature.NewFormatter(store, zapLogger),
	)
	registry.Init(ctx)
	defer registry.Cleanup()

	dispatcher := dispatch.New(registry, zapLogger)

	if nc != nil {
		sub, err := broadcast.ServeNATS(nc, options.ContextID, dispatcher, zapLogger)
		if err != nil {
			zapLogger.Fatal("cannot subscribe to NATS", zap.Error(err))
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	router := http.NewRouter(
		&http.RegisterHandler{
			Contexts: contextService,
			Issuer:   authority,
			Log:      zapLogger,
			Reserved: []string{options.ContextID},
		},
		&http.MessageHandler{Dispatcher: dispatcher, Features: registry, Contexts: contextService, Log: zapLogger},
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:    options.Port,
		Handler: router,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.VerifyClientCertIfGiven,
			ClientCAs:    caPool,
			MinVersion:   tls.VersionTLS12,
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
