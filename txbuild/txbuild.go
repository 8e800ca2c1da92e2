// Package txbuild assembles the unsigned transaction templates spending a
// channel's funding output, and wraps them into PSBT packets carrying the
// metadata an external signer needs. No signing or broadcasting happens at
// this layer.
package txbuild

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/spillmanlabs/spillman/input"
)

const (
	// TxVersion is the version used for all channel transactions.
	TxVersion = 2

	// RefundSequence is the sequence number set on the funding input of
	// refund transactions. It must be non-final, otherwise locktime
	// enforcement is disabled and OP_CHECKLOCKTIMEVERIFY fails the
	// script.
	RefundSequence = wire.MaxTxInSequenceNum - 1
)

var (
	// ErrDustOutput is returned when a requested output is below the
	// network's non-dust threshold at the default relay fee.
	ErrDustOutput = errors.New("output below dust threshold")
)

// ErrAmountExceedsFunding is a type matching the error interface which is
// returned when the outputs of a requested transaction sum to more than the
// funding output being spent can provide.
type ErrAmountExceedsFunding struct {
	// Available is the value of the funding output.
	Available btcutil.Amount

	// Required is the total value of the requested outputs.
	Required btcutil.Amount
}

// Error returns a human-readable string describing the error.
func (e *ErrAmountExceedsFunding) Error() string {
	return fmt.Sprintf("outputs exceed funding amount: funding output "+
		"holds %v, outputs require %v", e.Available, e.Required)
}

// UnlockPath selects which branch of the funding script the produced
// transaction is meant to satisfy. Each path has a fixed shape: the
// cooperative path carries a zero locktime and a final sequence, while the
// refund path carries the refund locktime and a non-final sequence.
type UnlockPath uint8

const (
	// CooperativePath spends the funding output through the 2-of-2
	// branch, requiring both parties' signatures.
	CooperativePath UnlockPath = iota

	// RefundPath spends the funding output through the timelocked
	// single-signature branch.
	RefundPath
)

// String returns a human-readable name of the unlock path.
func (p UnlockPath) String() string {
	switch p {
	case CooperativePath:
		return "cooperative"
	case RefundPath:
		return "refund"
	default:
		return fmt.Sprintf("unknown<%d>", p)
	}
}

// Output describes a single requested transaction output.
type Output struct {
	// Value is the value of the output in satoshis.
	Value btcutil.Amount

	// PkScript is the output's public key script.
	PkScript []byte
}

// UnsignedTx assembles an unsigned transaction spending the funding output
// as its sole input, paying the requested outputs in order. No witness or
// signature data is attached; the sum of the outputs must not exceed the
// funding amount, with any difference acting as the caller's fee budget.
func UnsignedTx(fundingOutpoint wire.OutPoint,
	fundingAmount btcutil.Amount, outputs []Output,
	refundLockTime uint32, path UnlockPath) (*wire.MsgTx, error) {

	tx := wire.NewMsgTx(TxVersion)

	sequence := uint32(wire.MaxTxInSequenceNum)
	if path == RefundPath {
		sequence = RefundSequence
		tx.LockTime = refundLockTime
	}

	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: fundingOutpoint,
		Sequence:         sequence,
	})

	var totalOut btcutil.Amount
	for _, out := range outputs {
		txOut := wire.NewTxOut(int64(out.Value), out.PkScript)
		if txrules.IsDustOutput(txOut, txrules.DefaultRelayFeePerKb) {
			return nil, fmt.Errorf("%w: %v paying %x",
				ErrDustOutput, out.Value, out.PkScript)
		}

		totalOut += out.Value
		tx.AddTxOut(txOut)
	}

	if totalOut > fundingAmount {
		return nil, &ErrAmountExceedsFunding{
			Available: fundingAmount,
			Required:  totalOut,
		}
	}

	return tx, nil
}

// Wrap packages an unsigned transaction spending the channel's funding
// output into a PSBT packet. The funding input is annotated with the
// witness UTXO and witness script the signers need to produce their
// signatures. The wrapper itself never touches key material.
func Wrap(tx *wire.MsgTx, witnessScript []byte,
	fundingAmount btcutil.Amount) (*psbt.Packet, error) {

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("unable to wrap tx into psbt: %w", err)
	}

	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, err
	}

	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(
		int64(fundingAmount), pkScript,
	)
	packet.Inputs[0].WitnessScript = witnessScript

	return packet, nil
}
