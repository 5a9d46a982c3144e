package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/robfig/cron/v3"

	echoapi "github.com/trezcool/vitrine/apps/api/echo"
	"github.com/trezcool/vitrine/apps/shared"
	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/page"
	assetsvc "github.com/trezcool/vitrine/services/assets"
	cachesvc "github.com/trezcool/vitrine/services/cache"
	logsvc "github.com/trezcool/vitrine/services/logger"
	"github.com/trezcool/vitrine/services/metrics"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up storage
	store, err := shared.OpenStorage(ctx, conf, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = store.Close(context.Background()); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	assetStore, err := assetsvc.NewDiskStore(conf.Assets)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up assets: %v", err), err)
	}

	opts := []page.Option{page.WithSessionTTL(conf.Sessions.TTL)}
	if conf.Redis.Addr != "" {
		redisCache, err := cachesvc.NewRedisCache(ctx, conf.Redis)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up cache: %v", err), err)
		}
		defer func() { _ = redisCache.Close() }()
		opts = append(opts, page.WithCache(redisCache))
	} else {
		memCache := cachesvc.NewMemoryCache(conf.Redis.TTL)
		defer memCache.Stop()
		opts = append(opts, page.WithCache(memCache))
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := shared.NewValidator()
	pageSvc := page.NewService(store.Repo, assetStore, logger, validate, opts...)
	defer func() {
		// let running uploads finish
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := pageSvc.Close(ctx); err != nil {
			logger.Error("uploads left unfinished", err)
		}
	}()

	appMetrics := metrics.New(pageSvc)
	stopWatching := appMetrics.Watch(pageSvc.Events())
	defer stopWatching()

	// sweep idle editing sessions
	sweeper := cron.New()
	if _, err = sweeper.AddFunc(conf.Sessions.SweepSpec, func() {
		if n := pageSvc.SweepIdle(); n > 0 {
			logger.Info(fmt.Sprintf("%d idle editing sessions closed", n))
		}
	}); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling session sweeps: %v", err), err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			PageSvc:    pageSvc,
			Metrics:    appMetrics,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
