package input

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrInvalidPubkey is returned when a public key isn't a valid
	// 33-byte compressed secp256k1 point.
	ErrInvalidPubkey = errors.New("invalid compressed public key")

	// ErrInvalidLocktime is returned when a refund locktime is zero, as
	// a zero locktime would make the refund branch of the funding script
	// spendable immediately.
	ErrInvalidLocktime = errors.New("invalid refund locktime")
)

// checkPubKey ensures that the passed serialized public key is a valid
// compressed secp256k1 public key. Only compressed keys are accepted, as
// both spend paths of the funding script commit to the 33-byte encoding.
func checkPubKey(pubKey []byte) error {
	if len(pubKey) != btcec.PubKeyBytesLenCompressed {
		return fmt.Errorf("%w: expected %v bytes, got %v",
			ErrInvalidPubkey, btcec.PubKeyBytesLenCompressed,
			len(pubKey))
	}

	if _, err := btcec.ParsePubKey(pubKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}

	return nil
}

// FundingScript constructs the witness script locking the channel's funding
// output. The script can be satisfied one of two ways: at any time by both
// parties signing cooperatively, or by the payer alone once the absolute
// refund locktime has been reached.
//
// Possible Input Scripts:
//
//	COOP:   <> <payer sig> <payee sig> 1
//	REFUND: <payer sig> <>
//
// OP_IF
//     2 <payer key> <payee key> 2 OP_CHECKMULTISIG
// OP_ELSE
//     <refund locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//     <payer key> OP_CHECKSIG
// OP_ENDIF
//
// The keys are kept in payer/payee order rather than sorted, as the two
// roles aren't interchangeable: the ELSE branch must commit to the payer's
// key, and signatures in the cooperative branch must appear in key order.
//
// The function is a pure function of its inputs: identical inputs always
// produce a byte-identical script.
func FundingScript(payerKey, payeeKey []byte,
	refundLockTime uint32) ([]byte, error) {

	if err := checkPubKey(payerKey); err != nil {
		return nil, fmt.Errorf("payer key: %w", err)
	}
	if err := checkPubKey(payeeKey); err != nil {
		return nil, fmt.Errorf("payee key: %w", err)
	}

	if refundLockTime == 0 {
		return nil, fmt.Errorf("%w: locktime must be non-zero",
			ErrInvalidLocktime)
	}

	builder := txscript.NewScriptBuilder()

	// The spender selects the branch with the final witness element. A
	// true value sends us into the cooperative clause, requiring both
	// parties' signatures.
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_2)
	builder.AddData(payerKey)
	builder.AddData(payeeKey)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	// Otherwise, this is the payer reclaiming the channel funds after
	// the refund locktime has expired.
	builder.AddOp(txscript.OP_ELSE)

	// Enforce the absolute locktime before we even look at the
	// signature. The spending transaction must carry a locktime at or
	// beyond this value, and a non-final sequence number.
	builder.AddInt64(int64(refundLockTime))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)

	// With the locktime satisfied, only the payer may claim the output.
	builder.AddData(payerKey)
	builder.AddOp(txscript.OP_CHECKSIG)

	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// WitnessScriptHash generates a pay-to-witness-script-hash public key script
// paying to a version 0 witness program paying to the passed witness script.
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_0)
	scriptHash := sha256.Sum256(witnessScript)
	builder.AddData(scriptHash[:])
	return builder.Script()
}

// PayToWitnessPubKeyHash generates a P2WPKH public key script paying to the
// passed serialized compressed public key. This is the script used for both
// the payee and payer settlement outputs.
func PayToWitnessPubKeyHash(pubKey []byte) ([]byte, error) {
	if err := checkPubKey(pubKey); err != nil {
		return nil, err
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_0)
	builder.AddData(btcutil.Hash160(pubKey))
	return builder.Script()
}
