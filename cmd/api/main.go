package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/app"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/config"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

func main() {
	// best-effort .env, then the real environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-ussd-credit", "store", cfg.Storage.Driver, "sms", cfg.Notification.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(cfg.Storage)
	if err != nil {
		sugar.Fatalf("open stores: %v", err)
	}
	defer stores.Close()
	if err := stores.Migrate(ctx); err != nil {
		sugar.Fatalf("migrate: %v", err)
	}

	a, err := app.New(ctx, cfg, stores, nil, sugar)
	if err != nil {
		sugar.Fatalf("wire services: %v", err)
	}

	// SMS delivery never blocks a USSD request
	go a.Dispatcher.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: a.Handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "addr", cfg.HTTP.Addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := stores.Ping(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
