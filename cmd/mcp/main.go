package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raid-guild/x402-facilitator-go/app"
	"github.com/raid-guild/x402-facilitator-go/config"
	"github.com/raid-guild/x402-facilitator-go/telemetry"
	"github.com/raid-guild/x402-facilitator-go/tools"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	// Stdout carries the MCP protocol
	log.SetOutput(os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	server := tools.NewServer(&tools.Service{
		Facilitator:  a.Facilitator,
		Payer:        a.Payer,
		Ledger:       a.Ledger,
		Capabilities: a.Capabilities,
	}, version)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Printf("mcp server error: %v", err)
	}
}
