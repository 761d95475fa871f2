// Package app wires the facilitator components from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/raid-guild/x402-facilitator-go/config"
	"github.com/raid-guild/x402-facilitator-go/core"
	"github.com/raid-guild/x402-facilitator-go/db"
	"github.com/raid-guild/x402-facilitator-go/ledger"
	"github.com/raid-guild/x402-facilitator-go/types"
)

// App holds the components shared by the HTTP and MCP entry points.
type App struct {
	Capabilities core.Capabilities
	Ledger       ledger.Ledger
	Facilitator  *core.Facilitator

	// Payer is nil when no payer key is configured.
	Payer *core.Payer

	// DB is nil when the ledger is kept in memory.
	DB *sql.DB
}

// Build creates the components described by the configuration.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Capabilities: core.DefaultCapabilities()}

	// Open the database and the durable ledger when a DSN is configured
	if cfg.DB.DSN != "" {
		conn, err := db.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		l := ledger.NewSQL(conn)
		if err := l.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		a.DB = conn
		a.Ledger = l
	} else {
		log.Printf("no database configured, settled payments are kept in memory")
		a.Ledger = ledger.NewMemory()
	}

	// Create the settlement backend
	var backend core.SettlementBackend
	verifier := &core.Verifier{Capabilities: a.Capabilities}
	if err := cfg.ValidateFacilitator(); err != nil {
		log.Printf("settlement disabled: %v", err)
	} else {
		eth, err := core.NewEthBackend(core.EthBackendConfig{
			Capabilities:   a.Capabilities,
			RPCURLs:        cfg.Networks(),
			PrivateKey:     cfg.Facilitator.PrivateKey,
			GasLimit:       cfg.Facilitator.GasLimit,
			WaitForReceipt: cfg.Facilitator.WaitForReceipt,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Printf("settling from facilitator account %s", eth.Address())
		backend = eth
		verifier.SignatureVerifier = eth
	}

	a.Facilitator = &core.Facilitator{
		Verifier:    verifier,
		Coordinator: core.NewCoordinator(backend, a.Ledger),
	}

	// Create the payer when a payer key is configured
	if cfg.Payer.PrivateKey != "" {
		signer, err := core.NewPrivateKeySigner(cfg.Payer.PrivateKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("payer: %w", err)
		}
		network := types.Network(cfg.Payer.DefaultNetwork)
		a.Payer = &core.Payer{
			Builder: &core.Builder{
				Signer:         signer,
				Capabilities:   a.Capabilities,
				DefaultNetwork: network,
			},
			Generator: &core.RequirementsGenerator{
				Capabilities:       a.Capabilities,
				DefaultNetwork:     network,
				MaxTimeoutSeconds:  cfg.Payments.MaxTimeoutSeconds,
				DefaultDescription: cfg.Payments.Description,
			},
		}
		log.Printf("signing payments as %s on %s", signer.Address(), network)
	}

	return a, nil
}

// ShutdownTimeout is how long in-flight requests get to finish.
func ShutdownTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
