// Package arenabuilder wires stores, repositories and the arena service
// from configuration.
package arenabuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/arenapresenter"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/docstore"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/gamefeed"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/observer"
	"github.com/park285/cheese-arena/internal/players"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/settlement"
)

const connectTimeout = 5 * time.Second

type Deps struct {
	Service  *arena.Service
	Store    docstore.Store
	Players  players.Repository
	Archiver archive.Archiver
	Handler  http.Handler

	closers []func() error
}

// Close releases every backend opened by New, last opened first.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	seat, err := matchmaking.ParseSeatPreference(cfg.SeatPreference)
	if err != nil {
		return nil, err
	}
	defaultTC, err := domain.ParseTimeControl(cfg.DefaultTimeControl)
	if err != nil {
		return nil, fmt.Errorf("default time control: %w", err)
	}
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	if d.Store, err = d.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	// postgres is shared by the player ledger and the archive
	var db *sql.DB
	if cfg.Players == "postgres" || cfg.Archive == "postgres" {
		if db, err = archive.OpenPostgres(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		d.closers = append(d.closers, db.Close)
	}

	switch cfg.Players {
	case "postgres":
		if err := players.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		d.Players = players.NewRepository(db)
	default:
		d.Players = players.NewMemoryRepository()
	}

	var history archive.Reader
	switch cfg.Archive {
	case "postgres":
		pg := archive.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		d.Archiver = pg
	case "badger":
		bdb, err := archive.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		d.closers = append(d.closers, bdb.Close)
		b := archive.NewBadger(bdb)
		d.Archiver, history = b, b
	case "http":
		key := strings.TrimSpace(cfg.ArchiveKey)
		d.Archiver = archive.NewHTTPSink(cfg.ArchiveURL, archive.WithHeaderProvider(func() map[string]string {
			if key == "" {
				return nil
			}
			return map[string]string{"X-Archive-Key": key}
		}))
	default:
		d.Archiver = archive.Nop{}
	}

	engine := rules.NewEngine()
	settler := settlement.NewService(d.Store, engine, d.Players,
		settlement.WithArchiver(d.Archiver),
		settlement.WithSite(cfg.Event, cfg.Site),
	)
	d.Service = arena.New(arena.Deps{
		Store:   d.Store,
		Engine:  engine,
		Queue:   matchmaking.NewQueue(d.Store, matchmaking.WithSeatPreference(seat), matchmaking.WithMaxAttempts(cfg.MatchmakingRetries)),
		Settler: settler,
		Players: d.Players,
		Observer: []observer.Option{
			observer.WithInterval(cfg.TickInterval),
			observer.WithJoinTimeout(cfg.JoinTimeout),
		},
	})

	format := arenapresenter.NewFormatter(cat)
	handlerOpts := []httpapi.Option{httpapi.WithDefaultTimeControl(defaultTC)}
	if history != nil {
		handlerOpts = append(handlerOpts, httpapi.WithHistory(history))
	}
	d.Handler = httpapi.NewRouter(
		httpapi.NewHandlers(d.Service, format, handlerOpts...),
		gamefeed.NewHandler(d.Service, format),
	)

	logger.Info("arena_wired",
		zap.String("store", cfg.Store),
		zap.String("players", cfg.Players),
		zap.String("archive", d.Archiver.Name()),
		zap.String("seat_preference", string(seat)),
		zap.String("default_time_control", defaultTC.String()),
	)
	return d, nil
}

func (d *Deps) openStore(ctx context.Context, cfg *config.AppConfig) (docstore.Store, error) {
	switch cfg.Store {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		d.closers = append(d.closers, rdb.Close)
		pctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return docstore.NewRedis(rdb), nil
	case "mongo":
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		d.closers = append(d.closers, func() error {
			dctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return client.Disconnect(dctx)
		})
		if err := client.Ping(cctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		return docstore.NewMongo(client, cfg.MongoDatabase), nil
	default:
		return docstore.NewMemory(), nil
	}
}
