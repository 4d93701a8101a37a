package jupiter

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/gagliardetto/solana-go"
)

type SwapInstructionsRequest struct {
	UserPublicKey string         `json:"userPublicKey"`
	QuoteResponse *QuoteResponse `json:"quoteResponse"`

	WrapAndUnwrapSol  *bool `json:"wrapAndUnwrapSol,omitempty"`
	UseSharedAccounts *bool `json:"useSharedAccounts,omitempty"`

	// Compute budget handling stays on our side.
	ComputeUnitPriceMicroLamports *uint64 `json:"computeUnitPriceMicroLamports,omitempty"`
}

type AccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type InstructionData struct {
	ProgramID string        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      string        `json:"data"` // base64
}

// ToSolana converts the JSON wire form into a signable instruction.
func (ix *InstructionData) ToSolana() (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", ix.ProgramID, err)
	}
	accounts := make(solana.AccountMetaSlice, 0, len(ix.Accounts))
	for _, a := range ix.Accounts {
		pk, err := solana.PublicKeyFromBase58(a.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid account %q: %w", a.Pubkey, err)
		}
		accounts = append(accounts, &solana.AccountMeta{
			PublicKey:  pk,
			IsSigner:   a.IsSigner,
			IsWritable: a.IsWritable,
		})
	}
	data, err := base64.StdEncoding.DecodeString(ix.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction data: %w", err)
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

type SwapInstructionsResponse struct {
	TokenLedgerInstruction      *InstructionData  `json:"tokenLedgerInstruction,omitempty"`
	ComputeBudgetInstructions   []InstructionData `json:"computeBudgetInstructions,omitempty"`
	SetupInstructions           []InstructionData `json:"setupInstructions,omitempty"`
	SwapInstruction             *InstructionData  `json:"swapInstruction"`
	CleanupInstruction          *InstructionData  `json:"cleanupInstruction,omitempty"`
	AddressLookupTableAddresses []string          `json:"addressLookupTableAddresses,omitempty"`
	ComputeUnitLimit            uint32            `json:"computeUnitLimit,omitempty"`

	SimulationError *string `json:"simulationError,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// CoreInstructions returns setup, swap, and cleanup in execution order,
// skipping aggregator compute budget instructions since we set our own.
func (r *SwapInstructionsResponse) CoreInstructions() ([]solana.Instruction, error) {
	if r.SwapInstruction == nil {
		return nil, fmt.Errorf("swap instruction missing from response")
	}
	wire := make([]InstructionData, 0, len(r.SetupInstructions)+2)
	wire = append(wire, r.SetupInstructions...)
	wire = append(wire, *r.SwapInstruction)
	if r.CleanupInstruction != nil {
		wire = append(wire, *r.CleanupInstruction)
	}
	out := make([]solana.Instruction, 0, len(wire))
	for i := range wire {
		ix, err := wire[i].ToSolana()
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}

func (c *Client) SwapInstructions(ctx context.Context, req SwapInstructionsRequest) (*SwapInstructionsResponse, error) {
	if req.UserPublicKey == "" {
		return nil, fmt.Errorf("userPublicKey is required")
	}
	if req.QuoteResponse == nil {
		return nil, fmt.Errorf("quoteResponse is required")
	}

	var out SwapInstructionsResponse
	if err := c.do(ctx, http.MethodPost, "/swap-instructions", req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("jupiter swap-instructions: %s", out.Error)
	}
	if out.SimulationError != nil && *out.SimulationError != "" {
		return nil, fmt.Errorf("jupiter simulation failed: %s", *out.SimulationError)
	}
	return &out, nil
}
