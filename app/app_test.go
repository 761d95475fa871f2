package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/x402-facilitator-go/config"
	"github.com/raid-guild/x402-facilitator-go/ledger"
)

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("without a database the ledger is in memory", func(t *testing.T) {
		cfg := &config.Config{}

		a, err := Build(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &ledger.Memory{}, a.Ledger)
		assert.Nil(t, a.DB)
		assert.Nil(t, a.Payer)
		assert.NotNil(t, a.Facilitator.Coordinator)
		assert.Nil(t, a.Facilitator.Coordinator.Backend)
		assert.Nil(t, a.Facilitator.Verifier.SignatureVerifier)
	})

	t.Run("sqlite database backs the ledger", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.DB.Driver = "sqlite"
		cfg.DB.DSN = ":memory:"

		a, err := Build(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		assert.IsType(t, &ledger.SQL{}, a.Ledger)
		assert.NotNil(t, a.DB)

		entries, err := a.Ledger.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("payer and facilitator keys enable both roles", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Payer.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
		cfg.Payer.DefaultNetwork = "cronos-testnet"
		cfg.Facilitator.PrivateKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
		cfg.Facilitator.RPCURLs = map[string]string{"cronos-testnet": "http://localhost:8545"}

		a, err := Build(ctx, cfg)
		require.NoError(t, err)
		defer a.Close()

		require.NotNil(t, a.Payer)
		assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", a.Payer.Builder.Signer.Address())
		assert.NotNil(t, a.Facilitator.Coordinator.Backend)
		assert.Same(t, a.Facilitator.Coordinator.Backend, a.Facilitator.Verifier.SignatureVerifier)
	})

	t.Run("malformed payer key", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Payer.PrivateKey = "0x1234"

		_, err := Build(ctx, cfg)
		assert.Error(t, err)
	})
}
