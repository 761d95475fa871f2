package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	handler "github.com/raid-guild/x402-facilitator-go/api"
	"github.com/raid-guild/x402-facilitator-go/app"
	"github.com/raid-guild/x402-facilitator-go/auth"
	"github.com/raid-guild/x402-facilitator-go/config"
	"github.com/raid-guild/x402-facilitator-go/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Fatalf("telemetry setup failed: %v", err)
	}
	defer shutdownTracing(context.Background())

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	hub := handler.NewHub()
	a.Facilitator.Coordinator.OnSettled = hub.Publish

	h := &handler.Handler{
		Facilitator:  a.Facilitator,
		Ledger:       a.Ledger,
		Capabilities: a.Capabilities,
		Payer:        a.Payer,
		Events:       hub,
		Auth: &auth.Authenticator{
			StaticAPIKey: cfg.Auth.StaticAPIKey,
			JWTSecret:    []byte(cfg.Auth.JWTSecret),
			JWTIssuer:    cfg.Auth.JWTIssuer,
		},
	}
	if cfg.Auth.UseDatabase {
		h.Auth.DB = a.DB
	}
	if cfg.RateLimit.PerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = 1
		}
		h.Limiter = handler.NewRateLimiter(cfg.RateLimit.PerSecond, burst)
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h.Routes(),
	}

	go func() {
		log.Printf("facilitator listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout(cfg))
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
