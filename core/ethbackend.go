package core

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/raid-guild/x402-facilitator-go/types"
)

// tokenABI covers the EIP-3009 and ERC-20 calls the facilitator makes.
const tokenABI = `[{
	"type": "function",
	"name": "transferWithAuthorization",
	"inputs": [
		{"name": "from", "type": "address"},
		{"name": "to", "type": "address"},
		{"name": "value", "type": "uint256"},
		{"name": "validAfter", "type": "uint256"},
		{"name": "validBefore", "type": "uint256"},
		{"name": "nonce", "type": "bytes32"},
		{"name": "v", "type": "uint8"},
		{"name": "r", "type": "bytes32"},
		{"name": "s", "type": "bytes32"}
	],
	"outputs": [],
	"constant": false
}, {
	"type": "function",
	"name": "balanceOf",
	"inputs": [
		{"name": "account", "type": "address"}
	],
	"outputs": [
		{"name": "", "type": "uint256"}
	],
	"constant": true
}, {
	"type": "function",
	"name": "authorizationState",
	"inputs": [
		{"name": "authorizer", "type": "address"},
		{"name": "nonce", "type": "bytes32"}
	],
	"outputs": [
		{"name": "", "type": "bool"}
	],
	"constant": true
}]`

var parsedTokenABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse token ABI: %v", err))
	}
	return parsed
}()

// EthBackendConfig is the configuration for the on-chain settlement backend.
type EthBackendConfig struct {
	Capabilities Capabilities
	RPCURLs      map[types.Network]string
	PrivateKey   string

	// GasLimit caps the estimated gas when non-zero.
	GasLimit uint64

	// WaitForReceipt blocks Execute until the transaction is mined.
	WaitForReceipt      bool
	ReceiptPollInterval time.Duration
}

// EthBackend settles authorizations by submitting EIP-3009
// transferWithAuthorization transactions signed by the facilitator key.
type EthBackend struct {
	cfg     EthBackendConfig
	key     *ecdsa.PrivateKey
	address common.Address

	mu        sync.Mutex
	submitted map[string]common.Hash
	clients   map[string]ChainClient
}

// NewEthBackend creates the backend and parses the facilitator key.
func NewEthBackend(cfg EthBackendConfig) (*EthBackend, error) {
	if cfg.PrivateKey == "" {
		return nil, errors.New("facilitator private key is not set")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse facilitator private key: %v", err)
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	return &EthBackend{
		cfg:       cfg,
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		submitted: make(map[string]common.Hash),
		clients:   make(map[string]ChainClient),
	}, nil
}

// Address returns the facilitator account that pays for gas.
func (b *EthBackend) Address() string {
	return b.address.Hex()
}

// VerifySignature checks the payer signature offline.
func (b *EthBackend) VerifySignature(ctx context.Context, a types.PaymentAuthorization, d Domain) (bool, error) {
	return RecoverVerifier{}.VerifySignature(ctx, a, d)
}

// Execute submits the authorization on chain.
func (b *EthBackend) Execute(ctx context.Context, a types.PaymentAuthorization, r types.PaymentRequirements) (SettlementOutcome, error) {

	// Native transfers cannot be pulled with an authorization
	if r.Asset == "" {
		return SettlementOutcome{}, &SettlementError{Reason: types.ErrorReasonUnsupportedAsset, Err: errors.New("native asset settlement is not supported")}
	}

	// Get the chain ID for the network
	info, ok := b.cfg.Capabilities.Lookup(r.Network)
	if !ok {
		return SettlementOutcome{}, &SettlementError{Reason: types.ErrorReasonInvalidPaymentRequirements, Err: fmt.Errorf("unsupported network %q", r.Network)}
	}
	chainID := big.NewInt(info.ChainID)

	// Set the contract address
	contractAddress := common.HexToAddress(r.Asset)

	// Pack the function call data
	txData, err := packTransferWithAuthorization(a)
	if err != nil {
		return SettlementOutcome{}, err
	}

	// Dial the Ethereum RPC client
	client, err := b.client(r.Network)
	if err != nil {
		return SettlementOutcome{}, err
	}

	// Verify the payer holds enough of the asset
	if err := b.checkBalance(ctx, client, contractAddress, a); err != nil {
		return SettlementOutcome{}, err
	}

	// Get the pending nonce for the facilitator account
	txNonce, err := client.PendingNonceAt(ctx, b.address)
	if err != nil {
		return SettlementOutcome{}, backendError(fmt.Errorf("failed to get pending nonce: %w", err))
	}

	// Get the suggested gas tip cap
	gasTipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return SettlementOutcome{}, backendError(fmt.Errorf("failed to suggest gas tip cap: %w", err))
	}

	// Get the latest block header to get the base fee
	blockHeader, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return SettlementOutcome{}, backendError(fmt.Errorf("failed to get block header: %w", err))
	}
	if blockHeader.BaseFee == nil {
		return SettlementOutcome{}, backendError(errors.New("block header missing base fee: network may not support EIP-1559"))
	}

	// Determine the gas fee cap (2x base fee + gas tip cap)
	gasFeeCap := new(big.Int).Add(
		new(big.Int).Mul(blockHeader.BaseFee, big.NewInt(2)),
		gasTipCap,
	)

	// Get the estimated gas limit to set the gas amount
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: b.address,
		To:   &contractAddress,
		Data: txData,
	})
	if err != nil {
		return SettlementOutcome{}, backendError(fmt.Errorf("failed to estimate gas: %w", err))
	}

	// Add 20% buffer to the gas estimate
	gasLimit = gasLimit * 120 / 100
	if b.cfg.GasLimit > 0 && gasLimit > b.cfg.GasLimit {
		return SettlementOutcome{}, &SettlementError{Reason: types.ErrorReasonInsufficientRequirementsGasLimit}
	}

	// Create and sign the transaction using EIP-1559
	transaction := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     txNonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &contractAddress,
		Value:     big.NewInt(0),
		Data:      txData,
	})
	signedTx, err := ethtypes.SignTx(transaction, ethtypes.NewLondonSigner(chainID), b.key)
	if err != nil {
		return SettlementOutcome{}, backendError(fmt.Errorf("failed to sign transaction: %w", err))
	}

	// Send the signed transaction
	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return SettlementOutcome{}, backendError(fmt.Errorf("failed to send transaction: %w", err))
	}
	b.remember(a, signedTx.Hash())

	if b.cfg.WaitForReceipt {
		receipt, err := b.waitMined(ctx, client, signedTx.Hash())
		if err != nil {
			return SettlementOutcome{}, backendError(fmt.Errorf("failed to get transaction receipt: %w", err))
		}
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return SettlementOutcome{}, &SettlementError{Reason: types.ErrorReasonTransactionFailed, Err: fmt.Errorf("transaction %s reverted", signedTx.Hash().Hex())}
		}
	}

	return SettlementOutcome{Transaction: signedTx.Hash().Hex()}, nil
}

// Lookup reports the outcome of a transaction previously submitted for the
// authorization, or an error when the authorization was consumed elsewhere.
func (b *EthBackend) Lookup(ctx context.Context, a types.PaymentAuthorization, r types.PaymentRequirements) (*SettlementOutcome, error) {
	client, err := b.client(r.Network)
	if err != nil {
		return nil, err
	}

	// Check the transaction this backend submitted, if any
	if hash, ok := b.submittedHash(a); ok {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, backendError(fmt.Errorf("failed to get transaction receipt: %w", err))
		}
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return nil, nil
		}
		return &SettlementOutcome{Transaction: hash.Hex()}, nil
	}

	// Check whether the authorization nonce was already consumed
	nonce, err := decodeNonce(a.Nonce)
	if err != nil {
		return nil, &SettlementError{Reason: types.ErrorReasonInvalidAuthorizationNonce, Err: err}
	}
	data, err := parsedTokenABI.Pack("authorizationState", common.HexToAddress(a.From), nonce)
	if err != nil {
		return nil, backendError(fmt.Errorf("failed to pack authorizationState call data: %w", err))
	}
	contractAddress := common.HexToAddress(r.Asset)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &contractAddress, Data: data}, nil)
	if err != nil {
		return nil, backendError(fmt.Errorf("failed to get authorization state: %w", err))
	}
	if len(result) == 32 && new(big.Int).SetBytes(result).Sign() != 0 {
		return nil, &SettlementError{Reason: types.ErrorReasonInvalidAuthorizationNonce, Err: errors.New("authorization already used on chain")}
	}
	return nil, nil
}

func (b *EthBackend) client(network types.Network) (ChainClient, error) {
	rpcURL := b.cfg.RPCURLs[network]
	if rpcURL == "" {
		return nil, backendError(fmt.Errorf("no RPC URL configured for %s", network))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if client, ok := b.clients[rpcURL]; ok {
		return client, nil
	}
	client, err := DialChain(rpcURL)
	if err != nil {
		return nil, backendError(fmt.Errorf("failed to dial Ethereum RPC client: %w", err))
	}
	b.clients[rpcURL] = client
	return client, nil
}

func (b *EthBackend) checkBalance(ctx context.Context, client ChainClient, asset common.Address, a types.PaymentAuthorization) error {
	data, err := parsedTokenABI.Pack("balanceOf", common.HexToAddress(a.From))
	if err != nil {
		return backendError(fmt.Errorf("failed to pack balanceOf call data: %w", err))
	}
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &asset, Data: data}, nil)
	if err != nil {
		return backendError(fmt.Errorf("failed to get token balance: %w", err))
	}
	if len(result) != 32 {
		return backendError(errors.New("failed to get token balance: balance result is not 32 bytes"))
	}
	value, _ := new(big.Int).SetString(a.Value, 10)
	if new(big.Int).SetBytes(result).Cmp(value) < 0 {
		return &SettlementError{Reason: types.ErrorReasonInsufficientFunds}
	}
	return nil
}

func (b *EthBackend) waitMined(ctx context.Context, client ChainClient, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(b.cfg.ReceiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *EthBackend) remember(a types.PaymentAuthorization, hash common.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted[authorizationKey(a)] = hash
}

func (b *EthBackend) submittedHash(a types.PaymentAuthorization) (common.Hash, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hash, ok := b.submitted[authorizationKey(a)]
	return hash, ok
}

func authorizationKey(a types.PaymentAuthorization) string {
	return string(a.Network) + "/" + strings.ToLower(a.From) + "/" + strings.ToLower(a.Nonce)
}

// packTransferWithAuthorization packs the call data for the authorization.
func packTransferWithAuthorization(a types.PaymentAuthorization) ([]byte, error) {

	// Convert the authorization value from string to big.Int
	authValue, ok := new(big.Int).SetString(a.Value, 10)
	if !ok {
		return nil, &SettlementError{Reason: types.ErrorReasonInvalidAuthorizationValue}
	}

	// Decode the authorization nonce
	authNonce, err := decodeNonce(a.Nonce)
	if err != nil {
		return nil, &SettlementError{Reason: types.ErrorReasonInvalidAuthorizationNonce, Err: err}
	}

	// Parse the authorization signature
	authSignature, err := common.ParseHexOrString(a.Signature)
	if err != nil || len(authSignature) != 65 {
		return nil, &SettlementError{Reason: types.ErrorReasonInvalidAuthorizationSignature}
	}

	// Extract R, S, and V from the authorization signature
	var authSignatureR [32]byte
	var authSignatureS [32]byte
	copy(authSignatureR[:], authSignature[0:32])
	copy(authSignatureS[:], authSignature[32:64])
	authSignatureV := authSignature[64]

	// Convert the V value of the signature if necessary (0/1 → 27/28)
	if authSignatureV == 0 || authSignatureV == 1 {
		authSignatureV += 27
	}

	txData, err := parsedTokenABI.Pack(
		"transferWithAuthorization",
		common.HexToAddress(a.From),
		common.HexToAddress(a.To),
		authValue,
		big.NewInt(a.ValidAfter),
		big.NewInt(a.ValidBefore),
		authNonce,
		authSignatureV,
		authSignatureR,
		authSignatureS,
	)
	if err != nil {
		return nil, &SettlementError{Reason: types.ErrorReasonInvalidAuthorizationMessage, Err: err}
	}
	return txData, nil
}

func backendError(err error) error {
	return &SettlementError{Reason: types.ErrorReasonSettlementBackend, Err: err}
}
