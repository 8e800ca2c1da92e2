package spillman

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/spillmanlabs/spillman/input"
)

// finalizeWitness serializes the witness stack into the input's final
// witness field and clears the partial signatures, completing the input.
func finalizeWitness(pIn *psbt.PInput, witness wire.TxWitness) error {
	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, witness); err != nil {
		return fmt.Errorf("unable to serialize witness: %w", err)
	}

	pIn.FinalScriptWitness = buf.Bytes()
	pIn.PartialSigs = nil

	return nil
}

// FinalizePayment assembles the final witness of a payment or cooperative
// close PSBT from both parties' partial signatures. After this call the
// packet is complete and the finished transaction can be extracted for
// broadcast.
func (c *Channel) FinalizePayment(packet *psbt.Packet) error {
	if len(packet.Inputs) == 0 {
		return ErrMissingInput
	}
	pIn := &packet.Inputs[0]

	if pIn.WitnessScript == nil {
		return ErrMissingWitnessScript
	}

	payerSig, err := partialSig(pIn, c.params.PayerKey())
	if err != nil {
		return err
	}

	payeeSig, err := partialSig(pIn, c.params.PayeeKey())
	if err != nil {
		return err
	}

	witness := input.SpendCooperative(
		pIn.WitnessScript, payerSig, payeeSig,
	)

	return finalizeWitness(pIn, witness)
}

// FinalizeRefund assembles the final witness of a refund PSBT from the
// payer's partial signature. After this call the packet is complete and the
// finished transaction can be extracted, to be broadcast once the refund
// locktime has been reached.
func (c *Channel) FinalizeRefund(packet *psbt.Packet) error {
	if len(packet.Inputs) == 0 {
		return ErrMissingInput
	}
	pIn := &packet.Inputs[0]

	if pIn.WitnessScript == nil {
		return ErrMissingWitnessScript
	}

	payerSig, err := partialSig(pIn, c.params.PayerKey())
	if err != nil {
		return err
	}

	witness := input.SpendRefund(pIn.WitnessScript, payerSig)

	return finalizeWitness(pIn, witness)
}
