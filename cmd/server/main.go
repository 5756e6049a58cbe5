package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/voicechat/internal/adapters/http"
	"github.com/dkeye/voicechat/internal/adapters/store/memory"
	"github.com/dkeye/voicechat/internal/adapters/store/postgres"
	"github.com/dkeye/voicechat/internal/app"
	"github.com/dkeye/voicechat/internal/app/orch"
	"github.com/dkeye/voicechat/internal/auth"
	"github.com/dkeye/voicechat/internal/config"
	"github.com/dkeye/voicechat/internal/core"
	"github.com/dkeye/voicechat/internal/domain"
)

// stores groups the external collaborators one backend provides.
type stores struct {
	channels core.ChannelDirectory
	users    core.UserDirectory
	messages core.MessageStore
	status   core.StatusStore
	close    func()
}

func main() {
	mint := flag.String("mint", "", "print a credential for the given user id and exit")
	mintTTL := flag.Duration("mint-ttl", 24*time.Hour, "lifetime of a minted credential")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer st.close()

	verifier := auth.NewVerifier([]byte(cfg.Secret), cfg.Issuer, st.users)

	if *mint != "" {
		tok, err := verifier.Issue(domain.UserID(*mint), *mintTTL, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("mint credential")
		}
		fmt.Println(tok)
		return
	}

	statusWriter := app.NewStatusWriter(st.status, 256, 3*time.Second)
	go statusWriter.Run(ctx)

	reg := app.NewRegistry(app.WithStatusWriter(statusWriter))
	o := &orch.Orchestrator{
		Registry:      reg,
		Rooms:         app.NewHub[domain.RoomID]("rooms"),
		Voice:         app.NewHub[domain.ChannelID]("voice"),
		Policy:        app.SimplePolicy{},
		Directory:     st.channels,
		Messages:      st.messages,
		HistoryLimit:  cfg.HistoryLimit,
		MaxMessageLen: cfg.MaxMessageLen,
	}

	monitor := app.NewMonitor(reg, cfg.Heartbeat.SweepInterval, cfg.Heartbeat.Timeout, o.Disconnect)
	go monitor.Run(ctx)

	r := router.SetupRouter(ctx, cfg, o, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.Store.DSN,
			MaxConns:        cfg.Store.MaxConns,
			ApplicationName: "voicechat",
		})
		if err != nil {
			return nil, err
		}
		pg := postgres.NewStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Str("module", "main").Msg("postgres store ready")
		return &stores{channels: pg, users: pg, messages: pg, status: pg, close: pool.Close}, nil
	default:
		mem := memory.New()
		for _, ch := range cfg.Seed.Channels {
			mem.PutChannel(domain.Channel{ID: ch.ID, Name: ch.Name, Type: domain.ChannelType(ch.Type)})
		}
		for _, u := range cfg.Seed.Users {
			user, err := domain.NewUser(domain.UserID(u.ID), u.DisplayName, domain.Role(u.Role))
			if err != nil {
				return nil, fmt.Errorf("seed user %q: %w", u.ID, err)
			}
			if err := mem.PutUser(*user); err != nil {
				return nil, fmt.Errorf("seed user %q: %w", u.ID, err)
			}
		}
		log.Info().Str("module", "main").Int("channels", len(cfg.Seed.Channels)).Int("users", len(cfg.Seed.Users)).Msg("memory store seeded")
		return &stores{channels: mem, users: mem, messages: mem, status: mem, close: func() {}}, nil
	}
}
