package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lightninglabs/chantools/descriptors"
)

const parseResultFormat = `
Script type:			%s
Script pubkey:			%x
Address:			%s
Redeem script:			%s
Witness script:			%s
Lock time:			%s
Sequence:			%s
Coin type:			%d
`

type parseCommand struct {
	flags *descriptorFlags
	cmd   *cobra.Command
}

func newParseCommand() *cobra.Command {
	cc := &parseCommand{}
	cc.cmd = &cobra.Command{
		Use:   "parse",
		Short: "Parse a descriptor and print the scripts it resolves to",
		Long: `Parse destructures an output descriptor and prints its
scriptPubKey, address (if any), redeem/witness scripts and the
locktime/sequence its satisfaction requires.`,
		Example: `descriptors parse --descriptor "wpkh([d34db33f/84'/0'/0']` +
			`xpub.../0/0)"`,
		RunE: cc.Execute,
	}
	cc.flags = newDescriptorFlags(cc.cmd)

	return cc.cmd
}

func (c *parseCommand) Execute(_ *cobra.Command, _ []string) error {
	out, err := c.flags.parse()
	if err != nil {
		return fmt.Errorf("error parsing descriptor: %w", err)
	}

	spk, err := out.GetScriptPubKey()
	if err != nil {
		return fmt.Errorf("error getting scriptPubKey: %w", err)
	}
	addr, _ := out.GetAddress()

	redeemScript, hasRedeem := out.GetRedeemScript()
	redeemStr := na
	if hasRedeem {
		redeemStr = hex.EncodeToString(redeemScript)
	}

	witnessScript, hasWitness := out.GetWitnessScript()
	witnessStr := na
	if hasWitness {
		witnessStr = hex.EncodeToString(witnessScript)
	}

	lockTime, sequence := na, na
	if lt := out.GetLockTime(); lt != nil {
		lockTime = fmt.Sprintf("%d", *lt)
	}
	if seq := out.GetSequence(); seq != nil {
		sequence = fmt.Sprintf("%d", *seq)
	}

	guess := out.GuessOutput()
	scriptType := "unknown"
	switch {
	case guess.IsPKH:
		scriptType = "p2pkh"
	case guess.IsWPKH:
		scriptType = "p2wpkh"
	case guess.IsSH:
		scriptType = "p2sh"
	case guess.IsWSH:
		scriptType = "p2wsh"
	case guess.IsTR:
		scriptType = "p2tr"
	}

	fmt.Printf(
		parseResultFormat, scriptType, spk, addr, redeemStr, witnessStr,
		lockTime, sequence, descriptors.CoinType(out.Network()),
	)

	return nil
}

const na = "n/a"
