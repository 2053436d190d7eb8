package bootstrap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/scoreboard/internal/bootstrap"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	_ = logger.Init()

	convey.Convey("Given the default config", t, func() {
		cfg := config.New(ctx)

		convey.Convey("When the store is opened", func() {
			store, backend, err := bootstrap.OpenStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.Reset(func() { _ = store.Close() })

			convey.Convey("Then it is the memory store", func() {
				convey.So(backend, convey.ShouldEqual, config.StoreMemory)
				n, err := store.CountPlayers(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When sqlite is chosen", func() {
			cfg.Store = "SQLite"
			cfg.DSN = "file:bootstrap_open?mode=memory&cache=shared"
			store, backend, err := bootstrap.OpenStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.Reset(func() { _ = store.Close() })

			convey.Convey("Then the migrated sql store is returned", func() {
				convey.So(backend, convey.ShouldEqual, config.StoreSQLite)
				_, err := store.CountMatches(ctx)
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the backend is unknown", func() {
			cfg.Store = "redis"
			_, _, err := bootstrap.OpenStore(ctx, cfg)

			convey.Convey("Then it is an invalid config", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestNewServiceAndAuthenticator(t *testing.T) {
	ctx := context.Background()
	_ = logger.Init()

	convey.Convey("Given a config with small limits", t, func() {
		cfg := config.New(ctx)
		cfg.QueueSize = 4
		store, backend, err := bootstrap.OpenStore(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)

		svc := bootstrap.NewService(cfg, store, backend)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(svc.Stop)

		convey.Convey("Then the service reports them", func() {
			stats := svc.GetStats()
			convey.So(stats["queueSize"], convey.ShouldEqual, 4)
			convey.So(stats["store"], convey.ShouldEqual, config.StoreMemory)
		})

		convey.Convey("Then an empty hash gives a disabled authenticator", func() {
			a, err := bootstrap.NewAuthenticator(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(a.Enabled(), convey.ShouldBeFalse)
		})

		convey.Convey("Then a malformed hash is rejected", func() {
			cfg.AdminPasswordHash = "plain-text"
			_, err := bootstrap.NewAuthenticator(cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
