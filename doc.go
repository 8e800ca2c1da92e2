// Package spillman implements the transaction-level protocol of a Spillman
// style unidirectional Bitcoin payment channel, using a funding script with
// a CHECKLOCKTIMEVERIFY refund branch in place of a pre-signed refund
// transaction.
//
// The package constructs and verifies the transactions a channel consists
// of, and nothing more: it holds no keys, signs nothing, broadcasts
// nothing, and performs no coin selection. Every produced artifact is an
// unsigned transaction template wrapped into a PSBT packet carrying the
// spend metadata (funding script and amount) an external signer needs.
//
// A typical flow:
//
//  1. Both parties agree on the channel terms and build the same
//     ChannelParams.
//  2. The payer funds the channel via BuildFundingPsbt, completes it with
//     inputs and change, signs and broadcasts it externally.
//  3. The payee checks the confirmed funding transaction with
//     VerifyFundingTx, obtaining a Channel; the payer binds one with
//     ChannelFromFunding.
//  4. For each payment the payer calls CreatePayment with the new
//     cumulative amount, signs the returned PSBT and hands it to the payee
//     off-chain. The payee inspects it with VerifyPaymentPsbt and advances
//     their state with ApplyPayment.
//  5. The payee settles by co-signing the latest payment and broadcasting
//     it (FinalizePayment assembles the witness), racing the refund
//     locktime. Failing that, the payer reclaims the funds through
//     CreateRefund and FinalizeRefund once the locktime passes.
package spillman
