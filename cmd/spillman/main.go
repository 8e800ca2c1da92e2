// spillman is a small demonstration tool around the spillman library: it
// derives funding scripts and produces the channel's unsigned PSBT
// templates from the command line. It holds no keys and signs nothing;
// produced PSBTs are meant to be passed to an external signer.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/spillmanlabs/spillman"
	"github.com/urfave/cli"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[spillman] %v\n", err)
	os.Exit(1)
}

var (
	payerFlag = cli.StringFlag{
		Name:  "payer",
		Usage: "the payer's compressed public key in hex",
	}
	payeeFlag = cli.StringFlag{
		Name:  "payee",
		Usage: "the payee's compressed public key in hex",
	}
	lockTimeFlag = cli.Uint64Flag{
		Name: "locktime",
		Usage: "absolute refund locktime (block height or unix " +
			"timestamp)",
	}
	currentFlag = cli.Uint64Flag{
		Name: "current",
		Usage: "current best height (or timestamp) the locktime is " +
			"validated against",
	}
	capacityFlag = cli.Uint64Flag{
		Name:  "capacity",
		Usage: "channel capacity in satoshis",
	}
	outpointFlag = cli.StringFlag{
		Name:  "outpoint",
		Usage: "confirmed funding outpoint as txid:index",
	}
	amountFlag = cli.Uint64Flag{
		Name: "amount",
		Usage: "cumulative amount promised to the payee in " +
			"satoshis",
	}
	networkFlag = cli.StringFlag{
		Name:  "network",
		Usage: "the network to encode addresses for",
		Value: "mainnet",
	}
)

// chainParams maps the network flag onto the chain parameters used for
// address encoding.
func chainParams(ctx *cli.Context) (*chaincfg.Params, error) {
	network := ctx.GlobalString(networkFlag.Name)
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %v", network)
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "spillman"
	app.Usage = "construct Spillman channel transaction templates"
	app.Flags = []cli.Flag{networkFlag}
	app.Commands = []cli.Command{
		{
			Name:  "script",
			Usage: "derive the channel's funding script",
			Flags: []cli.Flag{
				payerFlag, payeeFlag, lockTimeFlag,
				currentFlag, capacityFlag,
			},
			Action: scriptCmd,
		},
		{
			Name: "fund",
			Usage: "build the funding PSBT (inputs and change " +
				"must be added by the wallet)",
			Flags: []cli.Flag{
				payerFlag, payeeFlag, lockTimeFlag,
				currentFlag, capacityFlag,
			},
			Action: fundCmd,
		},
		{
			Name:  "pay",
			Usage: "build an unsigned payment PSBT",
			Flags: []cli.Flag{
				payerFlag, payeeFlag, lockTimeFlag,
				currentFlag, capacityFlag, outpointFlag,
				amountFlag,
			},
			Action: payCmd,
		},
		{
			Name:  "refund",
			Usage: "build the unsigned refund PSBT",
			Flags: []cli.Flag{
				payerFlag, payeeFlag, lockTimeFlag,
				currentFlag, capacityFlag, outpointFlag,
			},
			Action: refundCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// parseKey decodes a hex-encoded compressed public key.
func parseKey(keyHex string) (*btcec.PublicKey, error) {
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key hex: %w", err)
	}

	return btcec.ParsePubKey(keyBytes)
}

// channelParams assembles ChannelParams from the common flags.
func channelParams(ctx *cli.Context) (*spillman.ChannelParams, error) {
	payerKey, err := parseKey(ctx.String(payerFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("payer: %w", err)
	}

	payeeKey, err := parseKey(ctx.String(payeeFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("payee: %w", err)
	}

	return spillman.NewChannelParams(
		payerKey, payeeKey,
		uint32(ctx.Uint64(lockTimeFlag.Name)),
		uint32(ctx.Uint64(currentFlag.Name)),
		btcutil.Amount(ctx.Uint64(capacityFlag.Name)),
	)
}

// channel binds the flag-level parameters to the funding outpoint flag.
func channel(ctx *cli.Context) (*spillman.Channel, error) {
	params, err := channelParams(ctx)
	if err != nil {
		return nil, err
	}

	outpoint, err := wire.NewOutPointFromString(
		ctx.String(outpointFlag.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("outpoint: %w", err)
	}

	return spillman.ChannelFromFunding(params, *outpoint)
}

// printPacket writes the packet to stdout in base64, the interchange
// encoding external signers expect.
func printPacket(packet *psbt.Packet) error {
	encoded, err := packet.B64Encode()
	if err != nil {
		return err
	}

	fmt.Println(encoded)

	return nil
}

func scriptCmd(ctx *cli.Context) error {
	params, err := channelParams(ctx)
	if err != nil {
		return err
	}

	witnessScript, fundingTxOut, err := params.FundingOutput()
	if err != nil {
		return err
	}

	net, err := chainParams(ctx)
	if err != nil {
		return err
	}

	scriptHash := sha256.Sum256(witnessScript)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], net)
	if err != nil {
		return err
	}

	fmt.Printf("witness_script: %x\n", witnessScript)
	fmt.Printf("pk_script:      %x\n", fundingTxOut.PkScript)
	fmt.Printf("address:        %v\n", addr)

	return nil
}

func fundCmd(ctx *cli.Context) error {
	params, err := channelParams(ctx)
	if err != nil {
		return err
	}

	packet, err := params.BuildFundingPsbt(nil, nil, nil, 0)
	if err != nil {
		return err
	}

	return printPacket(packet)
}

func payCmd(ctx *cli.Context) error {
	ch, err := channel(ctx)
	if err != nil {
		return err
	}

	packet, err := ch.CreatePayment(
		btcutil.Amount(ctx.Uint64(amountFlag.Name)),
	)
	if err != nil {
		return err
	}

	return printPacket(packet)
}

func refundCmd(ctx *cli.Context) error {
	ch, err := channel(ctx)
	if err != nil {
		return err
	}

	packet, err := ch.CreateRefund()
	if err != nil {
		return err
	}

	return printPacket(packet)
}
