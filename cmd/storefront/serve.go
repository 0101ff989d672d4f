package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/backend"
	h "github.com/fjod/go_cart/storefront/internal/http"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the storefront cart API for the UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			creds, err := a.credentialStore(ctx)
			if err != nil {
				return err
			}
			svc, err := a.cartService()
			if err != nil {
				return err
			}
			s := a.cartStore(svc, creds)

			if ok, err := s.Hydrate(ctx); err != nil {
				a.logger.Warn("hydrate from snapshot cache failed", zap.Error(err))
			} else if ok {
				a.logger.Info("cart hydrated from snapshot cache")
			}

			handler := h.NewCartHandler(s, creds, a.cfg.RequestTimeout, a.logger)
			orders := h.NewOrderHandler(store.NewCheckout(svc, s), s, a.cfg.RequestTimeout, a.logger)
			return a.run(&http.Server{
				Addr:        ":" + a.cfg.HTTPPort,
				Handler:     h.NewRouter(handler, orders, a.logger, a.cfg.RequestTimeout),
				ReadTimeout: 10 * time.Second,
				IdleTimeout: 60 * time.Second,
			}, "storefront api")
		},
	}
}

func (a *app) backendCmd() *cobra.Command {
	var (
		demoUser  string
		catalogDB string
	)
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run the in-memory cart backend with a demo catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := backend.OpenCatalog(catalogDB)
			if err != nil {
				return err
			}
			defer catalog.Close()
			if err := catalog.RunMigrations(); err != nil {
				return err
			}

			ms := backend.NewMemoryStore()
			defer ms.Close()
			n, err := catalog.Seed(cmd.Context(), ms)
			if err != nil {
				return err
			}
			a.logger.Info("catalog loaded", zap.String("db", catalogDB), zap.Int("products", n))

			if demoUser != "" {
				a.logger.Info("demo session issued",
					zap.String("user_id", demoUser), zap.String("token", ms.IssueToken(demoUser)))
			}

			return a.run(&http.Server{
				Addr:         ":" + a.cfg.BackendPort,
				Handler:      backend.NewHandler(ms, a.logger).Routes(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  60 * time.Second,
			}, "cart backend")
		},
	}
	cmd.Flags().StringVar(&demoUser, "demo-user", "demo", "issue a token for this user at startup (empty to skip)")
	cmd.Flags().StringVar(&catalogDB, "catalog-db", ":memory:", "sqlite database holding the product catalog")
	return cmd
}

// run serves srv until SIGINT or SIGTERM, then shuts down gracefully.
func (a *app) run(srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting", zap.String("server", name), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	a.logger.Info("shutting down server...", zap.String("server", name))
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	a.logger.Info("server exited", zap.String("server", name))
	return nil
}
