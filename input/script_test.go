package input

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var (
	// Deterministic test keys. No real funds are bound to these, the
	// script tests only need stable, valid points on the curve.
	testPayerPriv, testPayerPub = btcec.PrivKeyFromBytes([]byte{
		0x2b, 0xd8, 0x06, 0xc9, 0x7f, 0x0e, 0x00, 0xaf,
		0x1a, 0x1f, 0xc3, 0x32, 0x8f, 0xa7, 0x63, 0xa9,
		0x26, 0x97, 0x23, 0xc8, 0xdb, 0x8f, 0xac, 0x4f,
		0x93, 0xaf, 0x71, 0xdb, 0x18, 0x6d, 0x6e, 0x90,
	})

	testPayeePriv, testPayeePub = btcec.PrivKeyFromBytes([]byte{
		0x81, 0xb6, 0x37, 0xd8, 0xfc, 0xd2, 0xc6, 0xda,
		0x63, 0x59, 0xe6, 0x96, 0x31, 0x13, 0xa1, 0x17,
		0xd8, 0x9d, 0xca, 0xd3, 0x0d, 0xba, 0x00, 0xf5,
		0x33, 0x6f, 0x56, 0x64, 0x61, 0x1f, 0x3c, 0x89,
	})

	testRefundLockTime = uint32(700000)

	// testFundingValue is consumed entirely by the single output of the
	// spending transactions below; fees don't matter under VM execution.
	testFundingValue = int64(100000)
)

// newSpendTx creates a transaction spending a single P2WSH funding output,
// paying the full funding value to the payer's P2WPKH script.
func newSpendTx(t *testing.T, lockTime, sequence uint32) *wire.MsgTx {
	t.Helper()

	outputScript, err := PayToWitnessPubKeyHash(
		testPayerPub.SerializeCompressed(),
	)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.LockTime = lockTime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{0x01},
			Index: 0,
		},
		Sequence: sequence,
	})
	tx.AddTxOut(wire.NewTxOut(testFundingValue, outputScript))

	return tx
}

// signSpend produces a signature over the spending transaction's sole input,
// committing to the funding witness script, with the sighash type byte
// appended.
func signSpend(t *testing.T, tx *wire.MsgTx, witnessScript []byte,
	key *btcec.PrivateKey) []byte {

	t.Helper()

	pkScript, err := WitnessScriptHash(witnessScript)
	require.NoError(t, err)

	prevFetcher := txscript.NewCannedPrevOutputFetcher(
		pkScript, testFundingValue,
	)
	sigHashes := txscript.NewTxSigHashes(tx, prevFetcher)

	digest, err := txscript.CalcWitnessSigHash(
		witnessScript, sigHashes, txscript.SigHashAll, tx, 0,
		testFundingValue,
	)
	require.NoError(t, err)

	sig := ecdsa.Sign(key, digest)

	return append(sig.Serialize(), byte(txscript.SigHashAll))
}

// executeSpend runs the spending transaction through the script VM against
// the P2WSH funding output and returns the execution error, if any.
func executeSpend(t *testing.T, tx *wire.MsgTx,
	witnessScript []byte) error {

	t.Helper()

	pkScript, err := WitnessScriptHash(witnessScript)
	require.NoError(t, err)

	prevFetcher := txscript.NewCannedPrevOutputFetcher(
		pkScript, testFundingValue,
	)
	vm, err := txscript.NewEngine(
		pkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, prevFetcher), testFundingValue,
		prevFetcher,
	)
	require.NoError(t, err)

	return vm.Execute()
}

// TestFundingScriptDeterministic asserts that building the funding script
// twice with identical inputs yields byte-identical scripts, and that the
// expected opcodes for both spend paths are present.
func TestFundingScriptDeterministic(t *testing.T) {
	t.Parallel()

	payer := testPayerPub.SerializeCompressed()
	payee := testPayeePub.SerializeCompressed()

	script1, err := FundingScript(payer, payee, testRefundLockTime)
	require.NoError(t, err)

	script2, err := FundingScript(payer, payee, testRefundLockTime)
	require.NoError(t, err)

	require.Equal(t, script1, script2)

	asm, err := txscript.DisasmString(script1)
	require.NoError(t, err)
	require.Contains(t, asm, "OP_CHECKMULTISIG")
	require.Contains(t, asm, "OP_CHECKLOCKTIMEVERIFY")
	require.Contains(t, asm, "OP_CHECKSIG")
}

// TestFundingScriptValidation asserts the input validation of the funding
// script builder.
func TestFundingScriptValidation(t *testing.T) {
	t.Parallel()

	payer := testPayerPub.SerializeCompressed()
	payee := testPayeePub.SerializeCompressed()

	testCases := []struct {
		name     string
		payer    []byte
		payee    []byte
		lockTime uint32
		err      error
	}{{
		name:     "valid",
		payer:    payer,
		payee:    payee,
		lockTime: testRefundLockTime,
	}, {
		name:     "truncated payer key",
		payer:    payer[:32],
		payee:    payee,
		lockTime: testRefundLockTime,
		err:      ErrInvalidPubkey,
	}, {
		name:     "uncompressed payee key",
		payer:    payer,
		payee:    testPayeePub.SerializeUncompressed()[:33],
		lockTime: testRefundLockTime,
		err:      ErrInvalidPubkey,
	}, {
		name:     "point not on curve",
		payer:    append([]byte{0x02}, make([]byte, 32)...),
		payee:    payee,
		lockTime: testRefundLockTime,
		err:      ErrInvalidPubkey,
	}, {
		name:     "zero locktime",
		payer:    payer,
		payee:    payee,
		lockTime: 0,
		err:      ErrInvalidLocktime,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := FundingScript(
				tc.payer, tc.payee, tc.lockTime,
			)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
		})
	}
}

// TestFundingScriptSpends executes both spend paths of the funding script
// through the script VM, asserting which witness/transaction combinations
// are accepted.
func TestFundingScriptSpends(t *testing.T) {
	t.Parallel()

	witnessScript, err := FundingScript(
		testPayerPub.SerializeCompressed(),
		testPayeePub.SerializeCompressed(),
		testRefundLockTime,
	)
	require.NoError(t, err)

	const finalSeq = wire.MaxTxInSequenceNum

	testCases := []struct {
		name     string
		lockTime uint32
		sequence uint32
		witness  func(t *testing.T, tx *wire.MsgTx) wire.TxWitness
		valid    bool
	}{{
		// Both parties sign, any time.
		name:     "cooperative spend",
		lockTime: 0,
		sequence: finalSeq,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payerSig := signSpend(t, tx, witnessScript, testPayerPriv)
			payeeSig := signSpend(t, tx, witnessScript, testPayeePriv)
			return SpendCooperative(witnessScript, payerSig, payeeSig)
		},
		valid: true,
	}, {
		// Signatures must follow the key order in the script.
		name:     "cooperative spend swapped sigs",
		lockTime: 0,
		sequence: finalSeq,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payerSig := signSpend(t, tx, witnessScript, testPayerPriv)
			payeeSig := signSpend(t, tx, witnessScript, testPayeePriv)
			return SpendCooperative(witnessScript, payeeSig, payerSig)
		},
		valid: false,
	}, {
		// The payee alone can't use the cooperative branch.
		name:     "cooperative spend payee only",
		lockTime: 0,
		sequence: finalSeq,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payeeSig := signSpend(t, tx, witnessScript, testPayeePriv)
			return SpendCooperative(witnessScript, payeeSig, payeeSig)
		},
		valid: false,
	}, {
		// Payer reclaims after the locktime.
		name:     "refund at locktime",
		lockTime: testRefundLockTime,
		sequence: finalSeq - 1,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payerSig := signSpend(t, tx, witnessScript, testPayerPriv)
			return SpendRefund(witnessScript, payerSig)
		},
		valid: true,
	}, {
		// CLTV must reject a transaction with an earlier locktime.
		name:     "refund before locktime",
		lockTime: testRefundLockTime - 1,
		sequence: finalSeq - 1,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payerSig := signSpend(t, tx, witnessScript, testPayerPriv)
			return SpendRefund(witnessScript, payerSig)
		},
		valid: false,
	}, {
		// A final sequence number disables locktime enforcement, so
		// CLTV must fail the spend outright.
		name:     "refund with final sequence",
		lockTime: testRefundLockTime,
		sequence: finalSeq,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payerSig := signSpend(t, tx, witnessScript, testPayerPriv)
			return SpendRefund(witnessScript, payerSig)
		},
		valid: false,
	}, {
		// The refund branch commits to the payer's key only.
		name:     "refund with payee sig",
		lockTime: testRefundLockTime,
		sequence: finalSeq - 1,
		witness: func(t *testing.T, tx *wire.MsgTx) wire.TxWitness {
			payeeSig := signSpend(t, tx, witnessScript, testPayeePriv)
			return SpendRefund(witnessScript, payeeSig)
		},
		valid: false,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tx := newSpendTx(t, tc.lockTime, tc.sequence)
			tx.TxIn[0].Witness = tc.witness(t, tx)

			err := executeSpend(t, tx, witnessScript)
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
