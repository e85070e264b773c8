package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/sharetube/vectorplayer/internal/controller"
	"github.com/sharetube/vectorplayer/internal/domain"
	"github.com/sharetube/vectorplayer/internal/engine"
	"github.com/sharetube/vectorplayer/internal/engine/software"
	"github.com/sharetube/vectorplayer/internal/probe"
	payloadRedis "github.com/sharetube/vectorplayer/internal/repository/payload/redis"
	"github.com/sharetube/vectorplayer/internal/repository/session/inmemory"
	"github.com/sharetube/vectorplayer/internal/source"
	"github.com/sharetube/vectorplayer/pkg/ctxlogger"
	"github.com/sharetube/vectorplayer/pkg/redisclient"
	"github.com/sharetube/vectorplayer/pkg/validator"
)

type AppConfig struct {
	Host            string        `json:"host" validate:"required"`
	Port            int           `json:"port" validate:"gt=0,lte=65535"`
	LogLevel        string        `json:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	FrameInterval   time.Duration `json:"frame_interval" validate:"gte=0"`
	FetchTimeout    time.Duration `json:"fetch_timeout" validate:"gt=0"`
	MaxPayloadBytes int64         `json:"max_payload_bytes" validate:"gte=0"`
	PayloadCacheTTL time.Duration `json:"payload_cache_ttl" validate:"gt=0"`
	// AssetsDir is the only directory path locators may read from. Empty
	// disables path locators.
	AssetsDir string `json:"assets_dir"`
	// FetchAllowedHosts lists the hosts http(s) locators may name. Empty
	// disables remote fetches.
	FetchAllowedHosts []string `json:"fetch_allowed_hosts" validate:"dive,hostname|ip"`
	AllowedOrigins    []string `json:"allowed_origins" validate:"dive,url"`
	// DisableGPU skips the capability probe; the GPU tiers then always fall back.
	DisableGPU    bool   `json:"disable_gpu"`
	RedisPort     int    `json:"redis_port" validate:"gt=0,lte=65535"`
	RedisHost     string `json:"redis_host" validate:"required"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db" validate:"gte=0"`
}

func (cfg *AppConfig) Validate() error {
	if errs, ok := validator.NewValidator().Validate(cfg); !ok {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)
	slog.SetDefault(logger)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	caps := probe.Capabilities{}
	if !cfg.DisableGPU {
		caps = probe.Default()
	}
	logger.InfoContext(ctx, "renderer capabilities", "webgpu", caps.WebGPU, "webgl", caps.WebGL)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: newMux(cfg, rc, caps, logger),
	}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-serverCtx.Done()

	return nil
}

// newMux wires the worker host: a payload cache in redis, a resolver in front
// of it and one engine context per worker session.
func newMux(cfg *AppConfig, rc *redis.Client, caps probe.Capabilities, logger *slog.Logger) http.Handler {
	payloadRepo := payloadRedis.NewRepo(rc, cfg.PayloadCacheTTL)
	resolver := source.NewResolver(&source.Config{
		Client:   &http.Client{Timeout: cfg.FetchTimeout},
		Fs:       assetsFs(cfg.AssetsDir),
		Cache:    payloadRepo,
		MaxBytes: cfg.MaxPayloadBytes,
		AllowHost: func(host string) bool {
			return lo.Contains(cfg.FetchAllowedHosts, host)
		},
	})

	engines := func() *engine.Context {
		return engine.NewContext(logger,
			engine.ProbedBackend{
				Backend:   software.NewBackend(domain.RendererWebGPU),
				Available: func() bool { return caps.WebGPU },
			},
			engine.ProbedBackend{
				Backend:   software.NewBackend(domain.RendererWebGL),
				Available: func() bool { return caps.WebGL },
			},
			software.NewBackend(domain.RendererSoftware),
		)
	}

	c := controller.NewController(&controller.Config{
		Engines:        engines,
		Resolver:       resolver,
		Sessions:       inmemory.NewRepo(),
		FrameInterval:  cfg.FrameInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	return c.GetMux()
}

// assetsFs is read-only and rooted at dir, so client locators cannot reach
// the rest of the host filesystem.
func assetsFs(dir string) afero.Fs {
	if dir == "" {
		return afero.NewReadOnlyFs(afero.NewMemMapFs())
	}

	return afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}
