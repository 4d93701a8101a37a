package txbuilder

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// ComputeBudget instruction opcodes (first data byte).
const (
	opSetComputeUnitLimit byte = 0x02
	opSetComputeUnitPrice byte = 0x03
)

// DefaultComputeUnitLimit is assumed when a fee injection has to bump a
// transaction that carries no explicit limit yet.
const DefaultComputeUnitLimit uint32 = 200_000

// Builder assembles an ordered instruction list into a signable
// transaction. Compute-budget instructions are upserted: setting the unit
// limit or unit price twice never leaves two conflicting instructions.
type Builder struct {
	payer solana.PublicKey
	ixs   []solana.Instruction
}

// New creates a builder over a payer and a base instruction list, typically
// the instructions returned by the swap-build service.
func New(payer solana.PublicKey, base []solana.Instruction) *Builder {
	ixs := make([]solana.Instruction, len(base))
	copy(ixs, base)
	return &Builder{payer: payer, ixs: ixs}
}

// Payer returns the fee payer.
func (b *Builder) Payer() solana.PublicKey { return b.payer }

// Instructions returns the current ordered instruction list.
func (b *Builder) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, len(b.ixs))
	copy(out, b.ixs)
	return out
}

// SetComputeUnitLimit strips any existing unit-limit instruction and
// prepends one with the given value.
func (b *Builder) SetComputeUnitLimit(units uint32) {
	b.stripBudgetOp(opSetComputeUnitLimit)
	data := make([]byte, 5)
	data[0] = opSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	b.ixs = append([]solana.Instruction{solana.NewInstruction(computeBudgetProgramID, nil, data)}, b.ixs...)
}

// SetComputeUnitPrice strips any existing unit-price instruction and
// prepends one with the given value, in micro-lamports per compute unit.
func (b *Builder) SetComputeUnitPrice(microLamports uint64) {
	b.stripBudgetOp(opSetComputeUnitPrice)
	data := make([]byte, 9)
	data[0] = opSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	b.ixs = append([]solana.Instruction{solana.NewInstruction(computeBudgetProgramID, nil, data)}, b.ixs...)
}

// ComputeUnitLimit returns the current unit limit, if one is set.
func (b *Builder) ComputeUnitLimit() (uint32, bool) {
	for _, ix := range b.ixs {
		if data, ok := budgetOpData(ix, opSetComputeUnitLimit); ok && len(data) >= 5 {
			return binary.LittleEndian.Uint32(data[1:5]), true
		}
	}
	return 0, false
}

// ComputeUnitPrice returns the current unit price, if one is set.
func (b *Builder) ComputeUnitPrice() (uint64, bool) {
	for _, ix := range b.ixs {
		if data, ok := budgetOpData(ix, opSetComputeUnitPrice); ok && len(data) >= 9 {
			return binary.LittleEndian.Uint64(data[1:9]), true
		}
	}
	return 0, false
}

// PrependOperatorFee inserts a lamport transfer to the operator fee account
// ahead of the swap instructions and raises the compute-unit limit by
// headroomCU in the same step, so the budget and the extra instruction
// cannot go out of sync.
func (b *Builder) PrependOperatorFee(dest solana.PublicKey, lamports uint64, headroomCU uint32) {
	limit, ok := b.ComputeUnitLimit()
	if !ok {
		limit = DefaultComputeUnitLimit
	}
	b.ixs = append([]solana.Instruction{NewSystemTransferIx(b.payer, dest, lamports)}, b.ixs...)
	b.SetComputeUnitLimit(limit + headroomCU)
}

// AppendTip adds a relay tip transfer as the final instruction.
func (b *Builder) AppendTip(tipAccount solana.PublicKey, lamports uint64) {
	b.ixs = append(b.ixs, NewSystemTransferIx(b.payer, tipAccount, lamports))
}

// Build produces the unsigned transaction.
func (b *Builder) Build(recentBlockhash solana.Hash) (*solana.Transaction, error) {
	if len(b.ixs) == 0 {
		return nil, fmt.Errorf("no instructions")
	}
	tx, err := solana.NewTransaction(
		b.ixs,
		recentBlockhash,
		solana.TransactionPayer(b.payer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

func (b *Builder) stripBudgetOp(op byte) {
	kept := b.ixs[:0]
	for _, ix := range b.ixs {
		if _, match := budgetOpData(ix, op); !match {
			kept = append(kept, ix)
		}
	}
	b.ixs = kept
}

// budgetOpData returns the instruction data when ix is a ComputeBudget
// instruction with the given opcode.
func budgetOpData(ix solana.Instruction, op byte) ([]byte, bool) {
	if !ix.ProgramID().Equals(computeBudgetProgramID) {
		return nil, false
	}
	data, err := ix.Data()
	if err != nil || len(data) == 0 || data[0] != op {
		return nil, false
	}
	return data, true
}

// NewSystemTransferIx builds a SystemProgram transfer instruction.
func NewSystemTransferIx(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	// SystemProgram instruction layout:
	// u32: instruction index (2 = Transfer)
	// u64: lamports
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	accounts := []*solana.AccountMeta{
		{PublicKey: from, IsSigner: true, IsWritable: true},
		{PublicKey: to, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(solana.SystemProgramID, accounts, data)
}
