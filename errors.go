package spillman

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spillmanlabs/spillman/input"
	"github.com/spillmanlabs/spillman/txbuild"
)

var (
	// ErrInvalidPubkey is returned when a channel participant's public
	// key isn't a valid compressed secp256k1 key.
	ErrInvalidPubkey = input.ErrInvalidPubkey

	// ErrInvalidLocktime is returned when the refund locktime is zero,
	// not strictly in the future, or not comparable to the reference
	// height/time supplied by the caller.
	ErrInvalidLocktime = input.ErrInvalidLocktime

	// ErrInvalidAmount is returned when the channel capacity is zero or
	// negative.
	ErrInvalidAmount = errors.New("channel capacity must be positive")

	// ErrDustOutput is returned when a produced template would carry an
	// output below the network's dust threshold.
	ErrDustOutput = txbuild.ErrDustOutput

	// ErrNonMonotonicPayment is returned when a requested payment total
	// is lower than the amount already promised to the payee. Channel
	// payments carry cumulative amounts and may only grow.
	ErrNonMonotonicPayment = errors.New("payment total lower than " +
		"current channel amount")

	// ErrStaleFundingReference is returned when a funding transaction or
	// outpoint doesn't correspond to the channel's expected funding
	// output script and amount.
	ErrStaleFundingReference = errors.New("funding reference does not " +
		"match channel parameters")

	// ErrDuplicateChannelOutput is returned when a caller-supplied extra
	// funding output pays to the channel script, which would make the
	// funding outpoint ambiguous.
	ErrDuplicateChannelOutput = errors.New("extra output duplicates " +
		"channel output script")
)

// Verification errors, returned when inspecting a counterparty-supplied
// payment PSBT.
var (
	// ErrMissingInput is returned when a payment PSBT carries no input.
	ErrMissingInput = errors.New("payment is missing its input")

	// ErrMultipleInputs is returned when a payment PSBT carries more
	// than the single funding input.
	ErrMultipleInputs = errors.New("payment has more than one input")

	// ErrFundingOutpointMismatch is returned when a payment doesn't
	// spend the channel's funding outpoint.
	ErrFundingOutpointMismatch = errors.New("payment does not spend " +
		"the funding outpoint")

	// ErrMissingWitnessUtxo is returned when the funding input lacks its
	// witness UTXO annotation.
	ErrMissingWitnessUtxo = errors.New("payment input missing witness " +
		"utxo")

	// ErrWitnessUtxoMismatch is returned when the annotated witness UTXO
	// doesn't match the channel's funding output.
	ErrWitnessUtxoMismatch = errors.New("payment witness utxo does not " +
		"match funding output")

	// ErrMissingWitnessScript is returned when the funding input lacks
	// its witness script annotation.
	ErrMissingWitnessScript = errors.New("input missing witness script")

	// ErrWitnessScriptMismatch is returned when the annotated witness
	// script doesn't match the channel's funding script.
	ErrWitnessScriptMismatch = errors.New("witness script does not " +
		"match funding script")

	// ErrInvalidSequence is returned when a payment's funding input
	// doesn't carry a final sequence number.
	ErrInvalidSequence = errors.New("payment sequence is not final")

	// ErrNonZeroLocktime is returned when a payment transaction carries
	// a non-zero locktime.
	ErrNonZeroLocktime = errors.New("payment carries non-zero locktime")

	// ErrMissingPayeeOutput is returned when a payment doesn't pay the
	// payee's settlement script.
	ErrMissingPayeeOutput = errors.New("payment missing payee output")

	// ErrMissingSignature is returned when an expected partial signature
	// is absent from a PSBT.
	ErrMissingSignature = errors.New("missing partial signature")

	// ErrInvalidSighash is returned when a partial signature commits to
	// an unsupported sighash type.
	ErrInvalidSighash = errors.New("unsupported sighash type")

	// ErrInvalidSignature is returned when a partial signature fails to
	// verify against the payment digest.
	ErrInvalidSignature = errors.New("invalid signature")
)

// ErrAmountExceedsFunding is returned when a payment total or a template's
// outputs exceed the channel capacity. It carries the available and required
// amounts.
type ErrAmountExceedsFunding = txbuild.ErrAmountExceedsFunding

// errNonMonotonic wraps ErrNonMonotonicPayment with the offending amounts.
func errNonMonotonic(current, requested btcutil.Amount) error {
	return fmt.Errorf("%w: current amount %v, requested %v",
		ErrNonMonotonicPayment, current, requested)
}
