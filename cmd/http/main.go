package main

import (
	"context"
	"expvar"
	"log"
	"runtime"
	"time"

	"github.com/hilthontt/ghostline/internal/infrastructure/configs"
	"github.com/hilthontt/ghostline/internal/infrastructure/jobs"
	"github.com/hilthontt/ghostline/internal/infrastructure/logging"
	"github.com/hilthontt/ghostline/internal/infrastructure/metrics"
	"github.com/hilthontt/ghostline/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/ghostline/internal/infrastructure/repository"
	"github.com/hilthontt/ghostline/internal/infrastructure/tracing"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
	"github.com/hilthontt/ghostline/internal/presentation/api"
	"github.com/hilthontt/ghostline/internal/presentation/handler/health"
	"github.com/hilthontt/ghostline/internal/presentation/handler/messages"
	"github.com/hilthontt/ghostline/internal/presentation/handler/rooms"
	"github.com/jonboulle/clockwork"
)

const serviceName = "ghostline-relay"

func main() {
	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logger.FilePath,
		Encoding: cfg.Logger.Encoding,
		Level:    cfg.Logger.Level,
		Logger:   cfg.Logger.Backend,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		Environment: cfg.Tracing.Environment,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "failed to init tracer", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	relayMetrics := metrics.NewRelay()

	roomRepository := repository.NewRoomRepository(repository.RoomRepositoryOptions{
		Capacity:        cfg.RoomStore.Capacity,
		IdleExpiry:      cfg.RoomStore.IdleExpiry,
		DefaultRoomID:   cfg.RoomStore.DefaultRoomID,
		DefaultRoomName: cfg.RoomStore.DefaultRoomName,
		Clock:           clock,
	})
	sessionRepository := repository.NewSessionRepository(clock)
	messageRepository := repository.NewMessageRepository(roomRepository, cfg.MessageStore.Capacity, clock)

	core := ws.NewCore(roomRepository, messageRepository, sessionRepository, ws.CoreOptions{
		Clock:   clock,
		Logger:  logger,
		Metrics: relayMetrics,
		Tracer:  tracing.GetTracer("ghostline/ws"),
	})
	go core.Run(ctx)

	sweep := jobs.NewExpirySweepJob(messageRepository, roomRepository, logger, clock, cfg.MessageStore.SweepInterval)
	go sweep.Start(ctx)

	var bucketStore ratelimiter.GetterSetter
	if cfg.RateLimiter.RedisAddr != "" {
		redisStore := ratelimiter.NewRedis(cfg.RateLimiter.RedisAddr, "ghostline:ratelimit:")
		if err := redisStore.Ping(ctx); err != nil {
			logger.Warn(logging.Redis, logging.Startup, "redis unreachable, limiter will fail open", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		bucketStore = redisStore
	}
	rateLimiter := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		Cache:            bucketStore,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
		Clock:            clock,
	})
	defer rateLimiter.Close()

	roomHandler := rooms.NewHandler(roomRepository, core, logger, rooms.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		UpgradeLimiter: ratelimiter.NewFixedWindow(cfg.RateLimiter.UpgradesPerMinute, time.Minute, clock),
		Client: ws.ClientOptions{
			SendBuffer:      cfg.WebSocket.SendBuffer,
			MaxFrameBytes:   cfg.MessageStore.MaxFrameBytes,
			PingInterval:    cfg.WebSocket.PingInterval,
			PongWait:        cfg.WebSocket.PongWait,
			FramesPerSecond: cfg.WebSocket.FramesPerSecond,
			FrameBurst:      cfg.WebSocket.FrameBurst,
		},
	})
	healthHandler := health.NewHandler(clock)
	messagesHandler := messages.NewHandler(messageRepository)

	app := api.NewApplication(*cfg, roomHandler, healthHandler, messagesHandler, logger, rateLimiter, relayMetrics)
	app.OnShutdown(sweep.Stop)
	app.OnShutdown(messageRepository.Close)
	app.OnShutdown(cancel)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))
	expvar.Publish("connections", expvar.Func(func() any {
		return core.Registry().Count()
	}))

	mux := app.Mount()
	if err := app.Run(mux); err != nil {
		logger.Fatal(logging.General, logging.Startup, "server stopped", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}
