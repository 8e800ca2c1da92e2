package spillman

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var (
	// alicePriv/alicePub are the payer's deterministic test keys.
	alicePriv, alicePub = btcec.PrivKeyFromBytes([]byte{
		0x81, 0xb6, 0x37, 0xd8, 0xfc, 0xd2, 0xc6, 0xda,
		0x63, 0x59, 0xe6, 0x96, 0x31, 0x13, 0xa1, 0x17,
		0xd8, 0x9d, 0xca, 0xd3, 0x0d, 0xba, 0x00, 0xf5,
		0x33, 0x6f, 0x56, 0x64, 0x61, 0x1f, 0x3c, 0x89,
	})

	// bobPriv/bobPub are the payee's deterministic test keys.
	bobPriv, bobPub = btcec.PrivKeyFromBytes([]byte{
		0x2b, 0xd8, 0x06, 0xc9, 0x7f, 0x0e, 0x00, 0xaf,
		0x1a, 0x1f, 0xc3, 0x32, 0x8f, 0xa7, 0x63, 0xa9,
		0x26, 0x97, 0x23, 0xc8, 0xdb, 0x8f, 0xac, 0x4f,
		0x93, 0xaf, 0x71, 0xdb, 0x18, 0x6d, 0x6e, 0x90,
	})
)

const (
	testLockTime      = uint32(700000)
	testCurrentHeight = uint32(650000)
	testCapacity      = btcutil.Amount(100000)
)

// testChannelParams builds valid channel parameters from the deterministic
// test keys.
func testChannelParams(t *testing.T) *ChannelParams {
	t.Helper()

	params, err := NewChannelParams(
		alicePub, bobPub, testLockTime, testCurrentHeight,
		testCapacity,
	)
	require.NoError(t, err)

	return params
}

// newFundingTx assembles a minimal funding transaction paying the channel
// capacity to the funding script at output index zero, and returns it along
// with the channel outpoint.
func newFundingTx(t *testing.T,
	params *ChannelParams) (*wire.MsgTx, wire.OutPoint) {

	t.Helper()

	_, fundingTxOut, err := params.FundingOutput()
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{
			Hash:  chainhash.Hash{0x05},
			Index: 3,
		},
		Sequence: wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(fundingTxOut)

	return tx, wire.OutPoint{Hash: tx.TxHash(), Index: 0}
}

// testChannel binds fresh channel parameters to a synthetic funding
// outpoint.
func testChannel(t *testing.T) *Channel {
	t.Helper()

	params := testChannelParams(t)
	_, fundingOutpoint := newFundingTx(t, params)

	channel, err := ChannelFromFunding(params, fundingOutpoint)
	require.NoError(t, err)

	return channel
}

// signPacket adds the passed key's partial SIGHASH_ALL signature over the
// packet's funding input, the way an external signer would.
func signPacket(t *testing.T, packet *psbt.Packet, key *btcec.PrivateKey) {
	t.Helper()

	pIn := &packet.Inputs[0]
	require.NotNil(t, pIn.WitnessUtxo)
	require.NotNil(t, pIn.WitnessScript)

	prevFetcher := txscript.NewCannedPrevOutputFetcher(
		pIn.WitnessUtxo.PkScript, pIn.WitnessUtxo.Value,
	)
	digest, err := txscript.CalcWitnessSigHash(
		pIn.WitnessScript,
		txscript.NewTxSigHashes(packet.UnsignedTx, prevFetcher),
		txscript.SigHashAll, packet.UnsignedTx, 0,
		pIn.WitnessUtxo.Value,
	)
	require.NoError(t, err)

	sig := ecdsa.Sign(key, digest)
	pIn.PartialSigs = append(pIn.PartialSigs, &psbt.PartialSig{
		PubKey: key.PubKey().SerializeCompressed(),
		Signature: append(
			sig.Serialize(), byte(txscript.SigHashAll),
		),
	})
}

// executeExtracted extracts the finalized transaction from the packet and
// runs it through the script VM against the channel's funding output.
func executeExtracted(t *testing.T, packet *psbt.Packet,
	params *ChannelParams) error {

	t.Helper()

	finalTx, err := psbt.Extract(packet)
	require.NoError(t, err)

	_, fundingTxOut, err := params.FundingOutput()
	require.NoError(t, err)

	prevFetcher := txscript.NewCannedPrevOutputFetcher(
		fundingTxOut.PkScript, fundingTxOut.Value,
	)
	vm, err := txscript.NewEngine(
		fundingTxOut.PkScript, finalTx, 0,
		txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(finalTx, prevFetcher),
		fundingTxOut.Value, prevFetcher,
	)
	require.NoError(t, err)

	return vm.Execute()
}

// outputValue returns the value of the first output paying the passed
// script, and whether such an output exists.
func outputValue(packet *psbt.Packet,
	pkScript []byte) (btcutil.Amount, bool) {

	for _, txOut := range packet.UnsignedTx.TxOut {
		if string(txOut.PkScript) == string(pkScript) {
			return btcutil.Amount(txOut.Value), true
		}
	}

	return 0, false
}
