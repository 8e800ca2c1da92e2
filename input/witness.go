package input

import (
	"github.com/btcsuite/btcd/wire"
)

// SpendCooperative generates the witness stack that settles the funding
// output through the cooperative 2-of-2 branch. Both signatures must already
// carry their sighash type byte, and must be in payer/payee order to match
// the key order committed to in the witness script.
func SpendCooperative(witnessScript, payerSig,
	payeeSig []byte) wire.TxWitness {

	witness := make(wire.TxWitness, 5)

	// Due to the off-by-one bug in OP_CHECKMULTISIG, an extra stack
	// element is consumed. We push a nil element to eat the extra pop.
	witness[0] = nil
	witness[1] = payerSig
	witness[2] = payeeSig

	// A true value selects the OP_IF clause of the script.
	witness[3] = []byte{1}
	witness[4] = witnessScript

	return witness
}

// SpendRefund generates the witness stack that reclaims the funding output
// through the timelocked refund branch using the payer's signature alone.
//
// NOTE: The spending transaction MUST carry a locktime at or beyond the
// refund locktime, and the target input MUST NOT have a final sequence
// number. Otherwise, the OP_CHECKLOCKTIMEVERIFY check will fail.
func SpendRefund(witnessScript, payerSig []byte) wire.TxWitness {
	witness := make(wire.TxWitness, 3)

	witness[0] = payerSig

	// An empty element selects the OP_ELSE clause. The element must be
	// empty rather than a zero byte to satisfy the minimal-if rule.
	witness[1] = nil
	witness[2] = witnessScript

	return witness
}
