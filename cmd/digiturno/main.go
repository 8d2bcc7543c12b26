package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/auth"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/config"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/fanout"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/httpapi"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/hub"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store/memory"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/store/postgres"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/telemetry"
	"github.com/Gabrielda2002/Back-end-digiturno/internal/ticketing"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	shutdownTelemetry := telemetry.Setup("digiturno", telemetry.Options{
		Endpoint: cfg.OTLPEndpoint,
		Insecure: cfg.OTLPInsecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var st store.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Printf("using in-memory store; data is lost on exit")
		st = memory.NewStore()
	default:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		st = postgres.NewStore(pool)
	}

	realtime := hub.New()
	publishers := []fanout.Publisher{realtime}
	if cfg.RedisURL != "" {
		client, err := fanout.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connect: %v", err)
		}
		defer client.Close()
		relay := fanout.NewRedisPublisher(client, cfg.RedisChannelPrefix)
		// Local clients are fed by the relay so every instance sees each event once.
		publishers = []fanout.Publisher{relay}
		go func() {
			if err := relay.Relay(ctx, realtime); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("redis relay stopped: %v", err)
			}
		}()
	}
	if len(cfg.KafkaBrokers) > 0 {
		exporter, err := fanout.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		defer func() {
			if err := exporter.Close(); err != nil {
				log.Printf("kafka close error: %v", err)
			}
		}()
		publishers = append(publishers, exporter)
	}

	tickets := ticketing.NewService(st, st, fanout.New(cfg.FanoutTimeout(), publishers...), ticketing.Options{
		Location: cfg.Location,
	})
	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL())
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	handler := httpapi.NewHandler(tickets, st, auth.NewAccounts(st, issuer), realtime, httpapi.Options{
		CatalogCacheTTL: cfg.CatalogCacheTTL(),
		RateLimit: httpapi.RateLimitConfig{
			IPPerMinute:   cfg.RateLimitPerMinute,
			IPBurst:       cfg.RateLimitBurst,
			SitePerMinute: cfg.SiteRateLimitPerMinute,
			SiteBurst:     cfg.SiteRateLimitBurst,
		},
	})

	server := httpapi.NewServer(":"+cfg.Port, otelhttp.NewHandler(httpapi.LoggingMiddleware(handler.Routes()), "digiturno"))

	go func() {
		log.Printf("digiturno listening on %s store=%s timezone=%s", server.Addr, cfg.StoreDriver, cfg.Location)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
