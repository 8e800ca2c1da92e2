package spillman

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/spillmanlabs/spillman/input"
	"github.com/spillmanlabs/spillman/txbuild"
)

// ChannelParams is the immutable description of a not-yet-funded channel:
// the two participants' public keys, the absolute refund locktime after
// which the payer may unilaterally reclaim the funds, and the capacity
// locked into the channel at funding time.
//
// A ChannelParams value is safe to share read-only between any number of
// goroutines and Channel instances, and can be reused to reconstruct a
// Channel after a restart.
type ChannelParams struct {
	payerKey *btcec.PublicKey
	payeeKey *btcec.PublicKey

	// refundLockTime is an absolute locktime, interpreted as a block
	// height below txscript.LockTimeThreshold and as a Unix timestamp at
	// or above it.
	refundLockTime uint32

	capacity btcutil.Amount
}

// NewChannelParams validates and assembles the parameters of a new channel.
// As the library has no chain access, the caller supplies the current best
// height (or current timestamp, for time-based locks) so the refund
// locktime can be checked to lie strictly in the future.
func NewChannelParams(payerKey, payeeKey *btcec.PublicKey,
	refundLockTime, currentLockTime uint32,
	capacity btcutil.Amount) (*ChannelParams, error) {

	if payerKey == nil || payeeKey == nil {
		return nil, fmt.Errorf("%w: key must be non-nil",
			ErrInvalidPubkey)
	}

	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAmount,
			capacity)
	}

	if refundLockTime == 0 {
		return nil, fmt.Errorf("%w: locktime must be non-zero",
			ErrInvalidLocktime)
	}

	// Height-based and time-based locktimes live in disjoint ranges and
	// can't be ordered against each other.
	refundIsHeight := refundLockTime < txscript.LockTimeThreshold
	currentIsHeight := currentLockTime < txscript.LockTimeThreshold
	if refundIsHeight != currentIsHeight {
		return nil, fmt.Errorf("%w: refund locktime %v and current "+
			"value %v are of different lock types",
			ErrInvalidLocktime, refundLockTime, currentLockTime)
	}

	if refundLockTime <= currentLockTime {
		return nil, fmt.Errorf("%w: refund locktime %v is not "+
			"beyond current value %v", ErrInvalidLocktime,
			refundLockTime, currentLockTime)
	}

	return &ChannelParams{
		payerKey:       payerKey,
		payeeKey:       payeeKey,
		refundLockTime: refundLockTime,
		capacity:       capacity,
	}, nil
}

// PayerKey returns the payer's public key.
func (p *ChannelParams) PayerKey() *btcec.PublicKey {
	return p.payerKey
}

// PayeeKey returns the payee's public key.
func (p *ChannelParams) PayeeKey() *btcec.PublicKey {
	return p.payeeKey
}

// RefundLockTime returns the absolute locktime after which the payer may
// reclaim the channel funds unilaterally.
func (p *ChannelParams) RefundLockTime() uint32 {
	return p.refundLockTime
}

// Capacity returns the total amount locked into the channel at funding
// time.
func (p *ChannelParams) Capacity() btcutil.Amount {
	return p.capacity
}

// FundingScript derives the witness script locking the channel's funding
// output. The script is a pure function of the channel parameters and is
// recomputed on demand; callers may cache the result.
func (p *ChannelParams) FundingScript() ([]byte, error) {
	return input.FundingScript(
		p.payerKey.SerializeCompressed(),
		p.payeeKey.SerializeCompressed(),
		p.refundLockTime,
	)
}

// FundingPkScript derives the P2WSH public key script of the channel's
// funding output.
func (p *ChannelParams) FundingPkScript() ([]byte, error) {
	witnessScript, err := p.FundingScript()
	if err != nil {
		return nil, err
	}

	return input.WitnessScriptHash(witnessScript)
}

// FundingOutput returns the funding witness script along with the channel
// output itself: a P2WSH output paying the channel capacity to the funding
// script.
func (p *ChannelParams) FundingOutput() ([]byte, *wire.TxOut, error) {
	witnessScript, err := p.FundingScript()
	if err != nil {
		return nil, nil, err
	}

	pkScript, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return nil, nil, err
	}

	return witnessScript, wire.NewTxOut(int64(p.capacity), pkScript), nil
}

// payeeScript returns the payee's P2WPKH settlement script.
func (p *ChannelParams) payeeScript() ([]byte, error) {
	return input.PayToWitnessPubKeyHash(
		p.payeeKey.SerializeCompressed(),
	)
}

// payerScript returns the payer's P2WPKH settlement script.
func (p *ChannelParams) payerScript() ([]byte, error) {
	return input.PayToWitnessPubKeyHash(
		p.payerKey.SerializeCompressed(),
	)
}

// BuildFundingPsbt produces the unsigned funding transaction wrapped into a
// PSBT packet. The channel output paying the capacity to the funding script
// is always output zero. Funding is the single transaction not constrained
// to one input, so caller-supplied extra inputs, outputs and an optional
// change output are appended verbatim after it; the only check applied to
// them is that no extra output pays the channel script. Coin selection and
// fees remain the caller's responsibility.
func (p *ChannelParams) BuildFundingPsbt(extraInputs []*wire.TxIn,
	extraOutputs []*wire.TxOut, changeScript []byte,
	changeAmount btcutil.Amount) (*psbt.Packet, error) {

	witnessScript, fundingTxOut, err := p.FundingOutput()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(txbuild.TxVersion)
	tx.AddTxOut(fundingTxOut)

	for _, extraIn := range extraInputs {
		// The PSBT container requires the unsigned transaction to be
		// free of signature data, so only the outpoint and sequence
		// survive.
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: extraIn.PreviousOutPoint,
			Sequence:         extraIn.Sequence,
		})
	}

	for _, extraOut := range extraOutputs {
		if bytes.Equal(extraOut.PkScript, fundingTxOut.PkScript) {
			return nil, ErrDuplicateChannelOutput
		}

		tx.AddTxOut(extraOut)
	}

	if len(changeScript) > 0 && changeAmount > 0 {
		tx.AddTxOut(wire.NewTxOut(int64(changeAmount), changeScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("unable to wrap funding tx into "+
			"psbt: %w", err)
	}

	// Annotate the channel output with its witness script so signers
	// can recognize what they're funding.
	packet.Outputs[0].WitnessScript = witnessScript

	log.Debugf("Built funding PSBT: capacity=%v, refund_locktime=%v, "+
		"extra_inputs=%v, total_outputs=%v", p.capacity,
		p.refundLockTime, len(extraInputs), len(tx.TxOut))

	return packet, nil
}
