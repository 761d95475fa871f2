package core

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// NetworkInfo describes a network the facilitator can build and verify
// authorizations for.
type NetworkInfo struct {
	Network types.Network
	ChainID int64
	Native  types.Asset
	Assets  []types.Asset
}

// Capabilities is the discovery surface: supported networks, assets and schemes.
type Capabilities struct {
	Networks []NetworkInfo
}

// DefaultCapabilities returns the networks known out of the box.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Networks: []NetworkInfo{
			{
				Network: types.NetworkCronos,
				ChainID: 25,
				Native:  types.Asset{Symbol: "CRO", Name: "Cronos", Version: "1", Decimals: 18, Native: true},
				Assets: []types.Asset{
					{Address: "0xf951eC28187D9E5Ca673Da8FE6757E6f0Be5F77C", Symbol: "USDC.e", Name: "Bridged USDC (Stargate)", Version: "1", Decimals: 6},
				},
			},
			{
				Network: types.NetworkCronosTestnet,
				ChainID: 338,
				Native:  types.Asset{Symbol: "TCRO", Name: "Cronos Testnet", Version: "1", Decimals: 18, Native: true},
				Assets: []types.Asset{
					{Address: "0xc01efAaF7C5C61bEbFAeb358E1161b537b8bC0e0", Symbol: "devUSDC.e", Name: "Bridged USDC (Stargate)", Version: "1", Decimals: 6},
				},
			},
			{
				Network: types.NetworkSepolia,
				ChainID: 11155111,
				Native:  types.Asset{Symbol: "ETH", Name: "Sepolia Ether", Version: "1", Decimals: 18, Native: true},
				Assets: []types.Asset{
					{Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238", Symbol: "USDC", Name: "USDC", Version: "2", Decimals: 6},
				},
			},
			{
				Network: types.NetworkBaseSepolia,
				ChainID: 84532,
				Native:  types.Asset{Symbol: "ETH", Name: "Base Sepolia Ether", Version: "1", Decimals: 18, Native: true},
				Assets: []types.Asset{
					{Address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Symbol: "USDC", Name: "USDC", Version: "2", Decimals: 6},
				},
			},
		},
	}
}

// Lookup returns the network info for the given network.
func (c Capabilities) Lookup(network types.Network) (NetworkInfo, bool) {
	for _, n := range c.Networks {
		if n.Network == network {
			return n, true
		}
	}
	return NetworkInfo{}, false
}

// Asset returns the asset for the given address. An empty address resolves
// to the native asset.
func (n NetworkInfo) Asset(address string) (types.Asset, bool) {
	if address == "" {
		return n.Native, true
	}
	for _, a := range n.Assets {
		if strings.EqualFold(a.Address, address) {
			return a, true
		}
	}
	return types.Asset{}, false
}

// Domain returns the EIP-712 domain used to sign transfers of the asset.
func (n NetworkInfo) Domain(asset types.Asset) Domain {
	contract := common.Address{}.Hex()
	if !asset.Native {
		contract = common.HexToAddress(asset.Address).Hex()
	}
	return Domain{
		Name:              asset.Name,
		Version:           asset.Version,
		ChainID:           n.ChainID,
		VerifyingContract: contract,
	}
}

// Supported builds the supported response.
func (c Capabilities) Supported() types.SupportedResponse {
	kinds := make([]types.SupportedKind, 0, len(c.Networks))
	for _, n := range c.Networks {
		assets := make([]types.Asset, 0, len(n.Assets)+1)
		assets = append(assets, n.Native)
		assets = append(assets, n.Assets...)
		kinds = append(kinds, types.SupportedKind{
			X402Version: types.X402Version1,
			Scheme:      types.SchemeExact,
			Network:     n.Network,
			ChainID:     n.ChainID,
			Assets:      assets,
		})
	}
	return types.SupportedResponse{Kinds: kinds}
}
