package core

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/raid-guild/x402-facilitator-go/types"
)

const (
	DefaultMaxTimeoutSeconds = 600
	DefaultDescription       = "X402 payment"
)

// RequirementsGenerator derives the payment requirements a merchant publishes
// for a request. It is a pure function of its fields and the request.
type RequirementsGenerator struct {
	Capabilities       Capabilities
	DefaultNetwork     types.Network
	MaxTimeoutSeconds  int64
	DefaultDescription string
}

// BuildRequirements returns the requirements for the request.
func (g RequirementsGenerator) BuildRequirements(req types.PaymentRequest) (types.PaymentRequirements, error) {
	if err := validateRequest(req); err != nil {
		return types.PaymentRequirements{}, err
	}

	network := req.Network
	if network == "" {
		network = g.DefaultNetwork
	}
	info, ok := g.Capabilities.Lookup(network)
	if !ok {
		return types.PaymentRequirements{}, invalidInput("unsupported network %q", network)
	}
	asset, ok := info.Asset(req.Asset)
	if !ok {
		return types.PaymentRequirements{}, invalidInput("unsupported asset %q on %s", req.Asset, network)
	}

	timeout := req.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = g.MaxTimeoutSeconds
	}
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}

	description := req.Description
	if description == "" {
		description = g.DefaultDescription
	}
	if description == "" {
		description = DefaultDescription
	}

	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           network,
		PayTo:             common.HexToAddress(req.To).Hex(),
		Asset:             canonicalAsset(req.Asset),
		MaxAmountRequired: canonicalAmount(req.Value),
		MaxTimeoutSeconds: timeout,
		Description:       description,
		MimeType:          req.MimeType,
		Extra:             &types.Extra{Name: asset.Name, Version: asset.Version},
	}, nil
}
