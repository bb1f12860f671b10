package main

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/spf13/cobra"

	"github.com/lightninglabs/chantools/descriptors/psbtutil"
)

type updatePsbtCommand struct {
	flags   *descriptorFlags
	psbtio  *psbtIOFlags
	AsInput bool

	Vout  uint32
	TxID  string
	TxHex string
	Value int64
	RBF   bool

	cmd *cobra.Command
}

func newUpdatePsbtCommand() *cobra.Command {
	cc := &updatePsbtCommand{}
	cc.cmd = &cobra.Command{
		Use:   "updatepsbt",
		Short: "Add a new input or output spending/paying to a descriptor",
		Long: `Updatepsbt adds a new input (spending a descriptor's Output)
or a new output (paying to a descriptor's Output) to a PSBT, filling in
every piece of metadata (bip32Derivation, tapBip32Derivation,
tapLeafScript, redeemScript/witnessScript) the descriptor's form requires.`,
		Example: `descriptors updatepsbt --as_input --descriptor "wpkh(...)" \
	--vout 0 --txid <prevTxid> --value 100000 --psbt <base64>`,
		RunE: cc.Execute,
	}
	cc.flags = newDescriptorFlags(cc.cmd)
	cc.psbtio = newPsbtIOFlags(cc.cmd)

	cc.cmd.Flags().BoolVar(
		&cc.AsInput, "as_input", true, "add a new input (false adds a "+
			"new output instead)",
	)
	cc.cmd.Flags().Uint32Var(
		&cc.Vout, "vout", 0, "the previous output's index, for adding an "+
			"input",
	)
	cc.cmd.Flags().StringVar(
		&cc.TxID, "txid", "", "the previous transaction's txid, for a "+
			"segwit input with no --txhex",
	)
	cc.cmd.Flags().StringVar(
		&cc.TxHex, "txhex", "", "the previous transaction, hex encoded; "+
			"mandatory for a non-segwit input",
	)
	cc.cmd.Flags().Int64Var(
		&cc.Value, "value", 0, "the output's value in satoshis, for "+
			"adding an input (a segwit input with no --txhex) or "+
			"an output",
	)
	cc.cmd.Flags().BoolVar(
		&cc.RBF, "rbf", false, "opt the new input into BIP125 "+
			"replace-by-fee when an active locktime leaves the "+
			"sequence choice open",
	)

	return cc.cmd
}

func (c *updatePsbtCommand) Execute(_ *cobra.Command, _ []string) error {
	out, err := c.flags.parse()
	if err != nil {
		return fmt.Errorf("error parsing descriptor: %w", err)
	}

	packet, err := c.psbtio.load()
	if err != nil {
		return fmt.Errorf("error loading PSBT: %w", err)
	}

	if !c.AsInput {
		out.UpdatePsbtAsOutput(packet, c.Value)
		log.Infof("Added new output paying to %s", c.flags.Descriptor)
		return c.psbtio.store(packet)
	}

	txHex, err := decodeHexFlag("txhex", c.TxHex)
	if err != nil {
		return err
	}

	var txID *chainhash.Hash
	if c.TxID != "" {
		txID, err = chainhash.NewHashFromStr(c.TxID)
		if err != nil {
			return fmt.Errorf("invalid --txid: %w", err)
		}
	}

	prev := psbtutil.PrevOut{TxHex: txHex, TxID: txID, Value: c.Value}
	if _, err := out.UpdatePsbtAsInput(packet, prev, c.Vout, c.RBF); err != nil {
		return fmt.Errorf("error updating PSBT: %w", err)
	}

	log.Infof("Added new input spending %s", c.flags.Descriptor)

	return c.psbtio.store(packet)
}
