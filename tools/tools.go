// Package tools exposes the payment lifecycle as MCP tools so agents can pay
// for resources, settle incoming payments and check entitlements.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raid-guild/x402-facilitator-go/core"
	"github.com/raid-guild/x402-facilitator-go/ledger"
	"github.com/raid-guild/x402-facilitator-go/types"
)

// Service backs the MCP tools. Payer is optional; without it the payment
// tool reports that no signer is configured.
type Service struct {
	Facilitator  *core.Facilitator
	Payer        *core.Payer
	Ledger       ledger.Ledger
	Capabilities core.Capabilities
}

// NewServer creates an MCP server with every payment tool registered.
func NewServer(s *Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "x402-facilitator", Version: version}, nil)
	Register(server, s)
	return server
}

// Register adds the payment tools to the server.
func Register(server *mcp.Server, s *Service) {
	mcp.AddTool(server, PaymentTool(), s.PaymentHandler())
	mcp.AddTool(server, VerifyPaymentTool(), s.VerifyPaymentHandler())
	mcp.AddTool(server, CheckEntitlementTool(), s.CheckEntitlementHandler())
	mcp.AddTool(server, ListPaymentsTool(), s.ListPaymentsHandler())
	mcp.AddTool(server, GetSupportedTool(), s.GetSupportedHandler())
}

// PaymentInput is the input of the payment tool.
type PaymentInput struct {
	To          string `json:"to" jsonschema:"recipient address"`
	Value       string `json:"value" jsonschema:"amount in the asset's smallest unit"`
	Asset       string `json:"asset,omitempty" jsonschema:"token contract address, empty for the native asset"`
	Network     string `json:"network,omitempty" jsonschema:"network name, defaults to the configured network"`
	Description string `json:"description,omitempty" jsonschema:"description of the purchased resource"`
	APIEndpoint string `json:"apiEndpoint,omitempty" jsonschema:"merchant endpoint that receives the payment"`
}

// PaymentOutput is the signed payment handed to a merchant.
type PaymentOutput struct {
	PaymentID           string                    `json:"paymentId"`
	PaymentHeader       string                    `json:"paymentHeader"`
	PaymentRequirements types.PaymentRequirements `json:"paymentRequirements"`
	SignerAddress       string                    `json:"signerAddress"`
	ExpiresAt           int64                     `json:"expiresAt"`
	SubmittedTo         string                    `json:"submittedTo,omitempty"`
	MerchantResponse    any                       `json:"merchantResponse,omitempty"`
}

// VerifyPaymentInput is the input of the verify tool.
type VerifyPaymentInput struct {
	PaymentID           string                    `json:"paymentId" jsonschema:"payment id chosen by the payer"`
	PaymentHeader       string                    `json:"paymentHeader" jsonschema:"base64 payment header"`
	PaymentRequirements types.PaymentRequirements `json:"paymentRequirements" jsonschema:"requirements the payment must satisfy"`
}

// VerifyPaymentOutput reports the settlement of a payment.
type VerifyPaymentOutput struct {
	PaymentID      string              `json:"paymentId"`
	Success        bool                `json:"success"`
	Transaction    string              `json:"transaction,omitempty"`
	AlreadySettled bool                `json:"alreadySettled,omitempty"`
	Payer          string              `json:"payer,omitempty"`
	ErrorReason    types.ErrorReason   `json:"errorReason,omitempty"`
	InvalidReason  types.InvalidReason `json:"invalidReason,omitempty"`
}

// PaymentIDInput selects one payment.
type PaymentIDInput struct {
	PaymentID string `json:"paymentId" jsonschema:"payment id to look up"`
}

// Payment is a settled ledger entry.
type Payment struct {
	PaymentID   string `json:"paymentId"`
	Status      string `json:"status"`
	Transaction string `json:"transaction,omitempty"`
	Payer       string `json:"payer"`
	PayTo       string `json:"payTo"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset,omitempty"`
	Network     string `json:"network"`
	SettledAt   string `json:"settledAt"`
}

// EntitlementOutput reports whether a payment grants access.
type EntitlementOutput struct {
	PaymentID string   `json:"paymentId"`
	Entitled  bool     `json:"entitled"`
	Payment   *Payment `json:"payment,omitempty"`
}

// ListPaymentsInput is the empty input of the list tool.
type ListPaymentsInput struct{}

// ListPaymentsOutput lists every settled payment.
type ListPaymentsOutput struct {
	Payments []Payment `json:"payments"`
	Count    int       `json:"count"`
}

// GetSupportedInput is the empty input of the supported tool.
type GetSupportedInput struct{}

// PaymentTool defines the payment tool.
func PaymentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "x402_payment",
		Description: "Signs an x402 payment and optionally submits it to a merchant endpoint",
	}
}

// VerifyPaymentTool defines the verify tool.
func VerifyPaymentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "x402_verify_payment",
		Description: "Verifies an x402 payment header and settles it under its payment id",
	}
}

// CheckEntitlementTool defines the entitlement tool.
func CheckEntitlementTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "x402_check_entitlement",
		Description: "Reports whether a payment id has been settled",
	}
}

// ListPaymentsTool defines the list tool.
func ListPaymentsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "x402_list_payments",
		Description: "Lists settled payments",
	}
}

// GetSupportedTool defines the supported tool.
func GetSupportedTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "x402_get_supported",
		Description: "Lists supported networks, schemes and assets",
	}
}

// PaymentHandler builds, signs and optionally submits a payment.
func (s *Service) PaymentHandler() mcp.ToolHandlerFor[PaymentInput, PaymentOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PaymentInput) (*mcp.CallToolResult, PaymentOutput, error) {
		if s.Payer == nil {
			return nil, PaymentOutput{}, errors.New("payer signer is not configured")
		}

		result, err := s.Payer.Pay(ctx, types.PaymentRequest{
			To:          input.To,
			Value:       input.Value,
			Asset:       input.Asset,
			Network:     types.Network(input.Network),
			Description: input.Description,
		}, input.APIEndpoint)
		if err != nil {
			return nil, PaymentOutput{}, fmt.Errorf("payment failed: %w", err)
		}

		output := PaymentOutput{
			PaymentID:           result.PaymentID,
			PaymentHeader:       result.PaymentHeader,
			PaymentRequirements: result.PaymentRequirements,
			SignerAddress:       result.SignerAddress,
			ExpiresAt:           result.ExpiresAt,
			SubmittedTo:         result.SubmittedTo,
		}
		if len(result.MerchantResponse) > 0 {
			output.MerchantResponse = result.MerchantResponse
		}
		return nil, output, nil
	}
}

// VerifyPaymentHandler verifies a payment header and settles it.
func (s *Service) VerifyPaymentHandler() mcp.ToolHandlerFor[VerifyPaymentInput, VerifyPaymentOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VerifyPaymentInput) (*mcp.CallToolResult, VerifyPaymentOutput, error) {
		auth, err := core.DecodeHeader(input.PaymentHeader)
		if err != nil {
			return nil, VerifyPaymentOutput{
				PaymentID:   input.PaymentID,
				ErrorReason: types.ErrorReasonInvalidPaymentPayload,
			}, nil
		}

		response, err := s.Facilitator.VerifyAndSettle(ctx, input.PaymentID, auth, input.PaymentRequirements)
		if err != nil {
			return nil, VerifyPaymentOutput{}, fmt.Errorf("settle payment %s: %w", input.PaymentID, err)
		}

		return nil, VerifyPaymentOutput{
			PaymentID:      input.PaymentID,
			Success:        response.Success,
			Transaction:    response.Transaction,
			AlreadySettled: response.AlreadySettled,
			Payer:          response.Payer,
			ErrorReason:    response.ErrorReason,
			InvalidReason:  response.InvalidReason,
		}, nil
	}
}

// CheckEntitlementHandler looks up the ledger entry for a payment id.
func (s *Service) CheckEntitlementHandler() mcp.ToolHandlerFor[PaymentIDInput, EntitlementOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PaymentIDInput) (*mcp.CallToolResult, EntitlementOutput, error) {
		entry, err := s.Ledger.Get(ctx, input.PaymentID)
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, EntitlementOutput{PaymentID: input.PaymentID}, nil
		}
		if err != nil {
			return nil, EntitlementOutput{}, fmt.Errorf("get payment %s: %w", input.PaymentID, err)
		}

		payment := paymentFromEntry(entry)
		return nil, EntitlementOutput{
			PaymentID: input.PaymentID,
			Entitled:  entry.Status == types.PaymentStatusSettled,
			Payment:   &payment,
		}, nil
	}
}

// ListPaymentsHandler lists every ledger entry.
func (s *Service) ListPaymentsHandler() mcp.ToolHandlerFor[ListPaymentsInput, ListPaymentsOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListPaymentsInput) (*mcp.CallToolResult, ListPaymentsOutput, error) {
		entries, err := s.Ledger.List(ctx)
		if err != nil {
			return nil, ListPaymentsOutput{}, fmt.Errorf("list payments: %w", err)
		}

		payments := make([]Payment, 0, len(entries))
		for _, e := range entries {
			payments = append(payments, paymentFromEntry(e))
		}
		return nil, ListPaymentsOutput{Payments: payments, Count: len(payments)}, nil
	}
}

// GetSupportedHandler returns the discovery surface.
func (s *Service) GetSupportedHandler() mcp.ToolHandlerFor[GetSupportedInput, types.SupportedResponse] {
	return func(context.Context, *mcp.CallToolRequest, GetSupportedInput) (*mcp.CallToolResult, types.SupportedResponse, error) {
		return nil, s.Capabilities.Supported(), nil
	}
}

func paymentFromEntry(e types.LedgerEntry) Payment {
	return Payment{
		PaymentID:   e.PaymentID,
		Status:      string(e.Status),
		Transaction: e.Transaction,
		Payer:       e.Payer,
		PayTo:       e.PayTo,
		Amount:      e.Amount,
		Asset:       e.Asset,
		Network:     string(e.Network),
		SettledAt:   e.SettledAt.UTC().Format(time.RFC3339),
	}
}
