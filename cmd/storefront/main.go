package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/credentials"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every command needs, built once in PersistentPreRunE.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	redis  *redis.Client

	envFile string
	token   string
	userID  string
}

func main() {
	a := &app{}
	if err := a.rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront cart client and tools",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file merged into the environment")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token, overrides the stored session")
	root.PersistentFlags().StringVar(&a.userID, "user", "", "user id that goes with --token")

	root.AddCommand(
		a.serveCmd(),
		a.backendCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.cartCmd(),
		a.ordersCmd(),
	)
	return root
}

func (a *app) init() error {
	a.cfg = config.Load(a.envFile)

	l, err := logger.New(a.cfg.LogLevel, a.cfg.AppEnv)
	if err != nil {
		return err
	}
	a.logger = l
	zap.ReplaceGlobals(l)

	if a.cfg.UsesRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
		})
		if err := a.redis.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", a.cfg.RedisAddr, err)
		}
	}
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// credentialStore picks the configured backend. An explicit --token always
// wins and lives only for this process.
func (a *app) credentialStore(ctx context.Context) (credentials.Store, error) {
	if a.token != "" {
		s := credentials.NewMemoryStore()
		if err := s.Set(ctx, domain.Credentials{Token: a.token, UserID: a.userID}); err != nil {
			return nil, err
		}
		return s, nil
	}
	switch a.cfg.CredentialBackend {
	case "redis":
		return credentials.NewRedisStore(a.redis, a.cfg.SessionName, a.cfg.SessionTTL), nil
	case "memory":
		return credentials.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", a.cfg.CredentialBackend)
	}
}

func (a *app) cartService() (*remote.HTTPCartService, error) {
	var opts []remote.ClientOption
	if a.cfg.BreakerFailures > 0 {
		opts = append(opts, remote.WithCircuitBreaker(a.cfg.BreakerFailures, a.cfg.BreakerOpenTimeout, a.logger))
	}
	c, err := remote.NewClient(a.cfg.APIURL, remote.NewHTTPClient(a.cfg.RequestTimeout), opts...)
	if err != nil {
		return nil, err
	}
	return remote.NewHTTPCartService(c, a.logger), nil
}

func (a *app) cartStore(svc remote.CartService, creds credentials.Store) *store.CartStore {
	opts := []store.Option{
		store.WithLogger(a.logger),
		store.WithTimeout(a.cfg.RequestTimeout),
	}
	if a.cfg.SnapshotCache {
		opts = append(opts, store.WithCache(cache.NewRedisCache(a.redis)))
	}
	return store.NewCartStore(svc, creds, opts...)
}
