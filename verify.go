package spillman

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PaymentInfo summarizes a verified payment, letting the payee inspect it
// before applying it to the channel state.
type PaymentInfo struct {
	// Total is the cumulative amount paid to the payee after this
	// payment.
	Total btcutil.Amount

	// Delta is the amount transferred by this payment alone.
	Delta btcutil.Amount

	// Fee is the fee budget the payer carved out of the capacity for
	// this payment.
	Fee btcutil.Amount
}

// VerifyFundingTx cross-checks a funding transaction against the channel
// parameters: the outpoint must reference the passed transaction, and the
// referenced output must pay exactly the channel capacity to the channel's
// P2WSH script. On success a Channel bound to the outpoint is returned.
func (p *ChannelParams) VerifyFundingTx(tx *wire.MsgTx,
	fundingOutpoint wire.OutPoint) (*Channel, error) {

	if tx.TxHash() != fundingOutpoint.Hash {
		return nil, fmt.Errorf("%w: txid %v does not match "+
			"outpoint %v", ErrStaleFundingReference, tx.TxHash(),
			fundingOutpoint)
	}

	if fundingOutpoint.Index >= uint32(len(tx.TxOut)) {
		return nil, fmt.Errorf("%w: no output at index %v",
			ErrStaleFundingReference, fundingOutpoint.Index)
	}
	fundingOut := tx.TxOut[fundingOutpoint.Index]

	if btcutil.Amount(fundingOut.Value) != p.capacity {
		return nil, fmt.Errorf("%w: output value %v does not match "+
			"capacity %v", ErrStaleFundingReference,
			btcutil.Amount(fundingOut.Value), p.capacity)
	}

	_, expectedOut, err := p.FundingOutput()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(fundingOut.PkScript, expectedOut.PkScript) {
		return nil, fmt.Errorf("%w: output script mismatch",
			ErrStaleFundingReference)
	}

	log.Infof("Funding output %v verified, capacity=%v",
		fundingOutpoint, p.capacity)

	return ChannelFromFunding(p, fundingOutpoint)
}

// partialSig looks up the partial signature for the passed key in a PSBT
// input. The returned signature still carries its sighash type byte.
func partialSig(pIn *psbt.PInput, key *btcec.PublicKey) ([]byte, error) {
	keyBytes := key.SerializeCompressed()
	for _, sig := range pIn.PartialSigs {
		if bytes.Equal(sig.PubKey, keyBytes) {
			return sig.Signature, nil
		}
	}

	return nil, fmt.Errorf("%w: no signature for key %x",
		ErrMissingSignature, keyBytes)
}

// VerifyPaymentPsbt checks a counterparty-supplied payment PSBT against the
// channel state. This is the payee's half of the protocol: before accepting
// an incoming payment, the payee asserts that the template spends the
// funding output cooperatively, strictly increases the amount paid, stays
// within the capacity, and already carries the payer's valid signature. On
// success the payment's amounts are returned for inspection; the channel
// state is not modified. Use ApplyPayment to advance the state.
func (c *Channel) VerifyPaymentPsbt(packet *psbt.Packet) (*PaymentInfo,
	error) {

	tx := packet.UnsignedTx

	if len(tx.TxIn) == 0 || len(packet.Inputs) == 0 {
		return nil, ErrMissingInput
	}
	if len(tx.TxIn) > 1 {
		return nil, ErrMultipleInputs
	}

	if tx.TxIn[0].PreviousOutPoint != c.fundingOutpoint {
		return nil, fmt.Errorf("%w: spends %v, funding outpoint is "+
			"%v", ErrFundingOutpointMismatch,
			tx.TxIn[0].PreviousOutPoint, c.fundingOutpoint)
	}

	pIn := &packet.Inputs[0]

	witnessUtxo := pIn.WitnessUtxo
	if witnessUtxo == nil {
		return nil, ErrMissingWitnessUtxo
	}
	if witnessUtxo.Value != c.fundingTxOut.Value ||
		!bytes.Equal(witnessUtxo.PkScript, c.fundingTxOut.PkScript) {

		return nil, ErrWitnessUtxoMismatch
	}

	witnessScript := pIn.WitnessScript
	if witnessScript == nil {
		return nil, ErrMissingWitnessScript
	}
	expectedScript, err := c.params.FundingScript()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(witnessScript, expectedScript) {
		return nil, ErrWitnessScriptMismatch
	}

	// Cooperative settlements must not be encumbered by any locktime,
	// otherwise the payee could be prevented from settling before the
	// refund path opens up.
	if tx.TxIn[0].Sequence != wire.MaxTxInSequenceNum {
		return nil, ErrInvalidSequence
	}
	if tx.LockTime != 0 {
		return nil, ErrNonZeroLocktime
	}

	payeeScript, err := c.params.payeeScript()
	if err != nil {
		return nil, err
	}

	var (
		total      btcutil.Amount
		foundPayee bool
		totalOut   btcutil.Amount
	)
	for _, txOut := range tx.TxOut {
		totalOut += btcutil.Amount(txOut.Value)
		if bytes.Equal(txOut.PkScript, payeeScript) && !foundPayee {
			total = btcutil.Amount(txOut.Value)
			foundPayee = true
		}
	}
	if !foundPayee {
		return nil, ErrMissingPayeeOutput
	}

	if total <= c.paid {
		return nil, errNonMonotonic(c.paid, total)
	}

	if totalOut > c.params.Capacity() {
		return nil, &ErrAmountExceedsFunding{
			Available: c.params.Capacity(),
			Required:  totalOut,
		}
	}

	// The payer must already have signed; a payment template without
	// the payer's signature is worthless to the payee.
	sig, err := partialSig(pIn, c.params.PayerKey())
	if err != nil {
		return nil, err
	}
	if len(sig) < 2 {
		return nil, fmt.Errorf("%w: malformed signature",
			ErrInvalidSignature)
	}

	hashType := txscript.SigHashType(sig[len(sig)-1])
	if hashType != txscript.SigHashAll &&
		hashType != txscript.SigHashAll|txscript.SigHashAnyOneCanPay {

		return nil, fmt.Errorf("%w: %v", ErrInvalidSighash, hashType)
	}

	prevFetcher := txscript.NewCannedPrevOutputFetcher(
		c.fundingTxOut.PkScript, c.fundingTxOut.Value,
	)
	digest, err := txscript.CalcWitnessSigHash(
		witnessScript, txscript.NewTxSigHashes(tx, prevFetcher),
		hashType, tx, 0, c.fundingTxOut.Value,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to compute sighash: %w", err)
	}

	ecdsaSig, err := ecdsa.ParseDERSignature(sig[:len(sig)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !ecdsaSig.Verify(digest, c.params.PayerKey()) {
		return nil, fmt.Errorf("%w: payer signature does not "+
			"verify", ErrInvalidSignature)
	}

	return &PaymentInfo{
		Total: total,
		Delta: total - c.paid,
		Fee:   c.params.Capacity() - totalOut,
	}, nil
}

// ApplyPayment verifies an incoming payment PSBT and, if valid, advances
// the channel's cumulative amount to the payment's total. The verified
// packet replaces the cached template so a later close settles at the new
// balance.
func (c *Channel) ApplyPayment(packet *psbt.Packet) (*PaymentInfo, error) {
	info, err := c.VerifyPaymentPsbt(packet)
	if err != nil {
		return nil, err
	}

	c.paid = info.Total
	c.lastPayment = packet

	log.Debugf("Channel(%v): applied incoming payment, total=%v, "+
		"delta=%v, fee=%v", c.fundingOutpoint, info.Total, info.Delta,
		info.Fee)

	return info, nil
}
