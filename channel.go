package spillman

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/spillmanlabs/spillman/txbuild"
)

// Channel is the mutable state of a funded channel: the funding outpoint it
// is bound to, and the cumulative amount promised to the payee so far. Each
// successful payment advances that amount; it never decreases.
//
// A Channel is owned by exactly one caller context. Concurrent calls to
// CreatePayment or ApplyPayment on the same instance must be serialized by
// the caller, as payment ordering is a caller-level concern.
type Channel struct {
	params *ChannelParams

	// fundingOutpoint references the confirmed funding output. It is
	// set at construction and never changes.
	fundingOutpoint wire.OutPoint

	// fundingTxOut is the channel's funding output, derived once from
	// the parameters. It doubles as the witness UTXO annotation of
	// every produced template.
	fundingTxOut *wire.TxOut

	// paid is the cumulative amount promised to the payee. Tracking the
	// cumulative amount rather than deltas makes every payment template
	// self-contained: a later, higher-paying transaction supersedes all
	// earlier ones by simple amount comparison.
	paid btcutil.Amount

	// lastPayment caches the most recently produced payment template so
	// a retry with an unchanged amount returns the identical packet.
	lastPayment *psbt.Packet
}

// ChannelFromFunding binds channel parameters to a confirmed funding
// outpoint. The library has no chain access, so confirmation is taken on
// the caller's word; use ChannelParams.VerifyFundingTx to cross-check the
// outpoint against the full funding transaction instead.
func ChannelFromFunding(params *ChannelParams,
	fundingOutpoint wire.OutPoint) (*Channel, error) {

	_, fundingTxOut, err := params.FundingOutput()
	if err != nil {
		return nil, err
	}

	return &Channel{
		params:          params,
		fundingOutpoint: fundingOutpoint,
		fundingTxOut:    fundingTxOut,
	}, nil
}

// Params returns the channel's immutable parameters.
func (c *Channel) Params() *ChannelParams {
	return c.params
}

// FundingOutpoint returns the outpoint of the channel's funding output.
func (c *Channel) FundingOutpoint() wire.OutPoint {
	return c.fundingOutpoint
}

// Amount returns the cumulative amount promised to the payee so far.
func (c *Channel) Amount() btcutil.Amount {
	return c.paid
}

// Capacity returns the total amount locked into the channel.
func (c *Channel) Capacity() btcutil.Amount {
	return c.params.Capacity()
}

// buildPayment assembles the cooperative settlement template paying the
// passed cumulative amount to the payee and the remainder back to the
// payer. A zero-value side is omitted entirely. The template is fee-free:
// its outputs sum to the full capacity, and the caller must lower one
// output to make room for fees before signing.
func (c *Channel) buildPayment(
	amountToPayee btcutil.Amount) (*psbt.Packet, error) {

	witnessScript, err := c.params.FundingScript()
	if err != nil {
		return nil, err
	}

	outputs := make([]txbuild.Output, 0, 2)

	if amountToPayee > 0 {
		payeeScript, err := c.params.payeeScript()
		if err != nil {
			return nil, err
		}

		outputs = append(outputs, txbuild.Output{
			Value:    amountToPayee,
			PkScript: payeeScript,
		})
	}

	if remainder := c.params.Capacity() - amountToPayee; remainder > 0 {
		payerScript, err := c.params.payerScript()
		if err != nil {
			return nil, err
		}

		outputs = append(outputs, txbuild.Output{
			Value:    remainder,
			PkScript: payerScript,
		})
	}

	tx, err := txbuild.UnsignedTx(
		c.fundingOutpoint, c.params.Capacity(), outputs,
		c.params.RefundLockTime(), txbuild.CooperativePath,
	)
	if err != nil {
		return nil, err
	}

	return txbuild.Wrap(tx, witnessScript, c.params.Capacity())
}

// CreatePayment produces the unsigned payment template advancing the
// cumulative amount promised to the payee to amountToPayee. Amounts may
// only grow; requesting the current amount again is treated as an
// idempotent retry and returns the previously produced template.
//
// On success the channel state is advanced and the template cached; on
// failure the state is left untouched.
func (c *Channel) CreatePayment(
	amountToPayee btcutil.Amount) (*psbt.Packet, error) {

	if amountToPayee < c.paid {
		return nil, errNonMonotonic(c.paid, amountToPayee)
	}

	if amountToPayee == c.paid && c.lastPayment != nil {
		return c.lastPayment, nil
	}

	if amountToPayee > c.params.Capacity() {
		return nil, &ErrAmountExceedsFunding{
			Available: c.params.Capacity(),
			Required:  amountToPayee,
		}
	}

	packet, err := c.buildPayment(amountToPayee)
	if err != nil {
		return nil, err
	}

	// Commit only now that the full template exists; a failure above
	// leaves both the amount and the cache unchanged.
	c.paid = amountToPayee
	c.lastPayment = packet

	log.Debugf("Channel(%v): payment advanced to %v of %v",
		c.fundingOutpoint, c.paid, c.params.Capacity())

	return packet, nil
}

// CreateCooperativeClose produces the closing template settling the channel
// at its current balance. It is the payment template for the current
// amount; the channel state is not mutated.
func (c *Channel) CreateCooperativeClose() (*psbt.Packet, error) {
	if c.lastPayment != nil {
		return c.lastPayment, nil
	}

	return c.buildPayment(c.paid)
}

// CreateRefund produces the unilateral refund template paying the full
// capacity back to the payer. The transaction carries the refund locktime
// and a non-final sequence so the CHECKLOCKTIMEVERIFY branch is
// satisfiable. The template may be produced at any time, but is only valid
// on-chain once the locktime has been reached; broadcasting at the right
// moment is the caller's responsibility.
func (c *Channel) CreateRefund() (*psbt.Packet, error) {
	witnessScript, err := c.params.FundingScript()
	if err != nil {
		return nil, err
	}

	payerScript, err := c.params.payerScript()
	if err != nil {
		return nil, err
	}

	tx, err := txbuild.UnsignedTx(
		c.fundingOutpoint, c.params.Capacity(),
		[]txbuild.Output{{
			Value:    c.params.Capacity(),
			PkScript: payerScript,
		}},
		c.params.RefundLockTime(), txbuild.RefundPath,
	)
	if err != nil {
		return nil, err
	}

	return txbuild.Wrap(tx, witnessScript, c.params.Capacity())
}
