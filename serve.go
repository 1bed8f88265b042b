package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sealor/shop-assistant/pkg/store"
	"github.com/sealor/shop-assistant/pkg/web"
)

type ServeCmd struct {
	Addr        string `short:"a" long:"addr" description:"Listen address"`
	StoreDriver string `long:"store-driver" description:"Keep sessions in sqlite or postgres"`
	StoreDSN    string `long:"store-dsn" description:"Database DSN or sqlite file"`
}

func (s *ServeCmd) Execute(_ []string) error {
	cfg, logger, factory, err := opts.setup()
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.HTTPAddr = s.Addr
	}
	if s.StoreDriver != "" {
		cfg.Store.Driver = s.StoreDriver
	}
	if s.StoreDSN != "" {
		cfg.Store.DSN = s.StoreDSN
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var sessionStore web.Store
	if cfg.Store.Driver != "" {
		gormStore, err := store.NewGormStore(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer gormStore.Close()
		sessionStore = gormStore
		logger.Info("session store opened", "driver", cfg.Store.Driver)
	}

	connect := func(id, serverURL string) (web.Chat, error) {
		conv, err := factory.Resume(id, serverURL)
		if err != nil {
			return nil, err
		}
		return conv, nil
	}
	sessions := web.NewSessions(connect, sessionStore, logger)

	application, err := web.New(web.Options{Addr: cfg.HTTPAddr, DefaultServerURL: cfg.ServerURL}, sessions, logger)
	if err != nil {
		return err
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- application.Start()
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-serverErrCh; err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
