package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lightninglabs/chantools/descriptors"
	"github.com/lightninglabs/chantools/descriptors/taproot"
)

type finalizePsbtCommand struct {
	flags  *descriptorFlags
	psbtio *psbtIOFlags

	InputIndex int
	LeafHash   string
	LeafScript string
	Validate   bool

	cmd *cobra.Command
}

func newFinalizePsbtCommand() *cobra.Command {
	cc := &finalizePsbtCommand{}
	cc.cmd = &cobra.Command{
		Use:   "finalizepsbt",
		Short: "Finalize one input of a PSBT against its descriptor",
		Long: `Finalizepsbt builds the final scriptSig/witness for one
input of a PSBT, using whatever partial signatures (ECDSA partialSigs,
taprootKeySpendSig, taprootScriptSpendSig) the PSBT already carries for
the keys in the given descriptor. For a taproot descriptor with more than
one script-path leaf, --leaf_hash or --leaf_script pins which leaf to
finalize against; otherwise the smallest satisfiable leaf is chosen.`,
		Example: `descriptors finalizepsbt --descriptor "wsh(...)" \
	--input_index 0 --psbt <base64>`,
		RunE: cc.Execute,
	}
	cc.flags = newDescriptorFlags(cc.cmd)
	cc.psbtio = newPsbtIOFlags(cc.cmd)

	cc.cmd.Flags().IntVar(
		&cc.InputIndex, "input_index", 0, "the index of the input to "+
			"finalize",
	)
	cc.cmd.Flags().StringVar(
		&cc.LeafHash, "leaf_hash", "", "the tapLeafHash (hex) of the "+
			"taproot script-path leaf to finalize against",
	)
	cc.cmd.Flags().StringVar(
		&cc.LeafScript, "leaf_script", "", "the exact miniscript text of "+
			"the taproot script-path leaf to finalize against",
	)
	cc.cmd.Flags().BoolVar(
		&cc.Validate, "validate", false, "cryptographically verify every "+
			"partial signature on the input before finalizing",
	)

	return cc.cmd
}

func (c *finalizePsbtCommand) Execute(_ *cobra.Command, _ []string) error {
	out, err := c.flags.parse()
	if err != nil {
		return fmt.Errorf("error parsing descriptor: %w", err)
	}

	packet, err := c.psbtio.load()
	if err != nil {
		return fmt.Errorf("error loading PSBT: %w", err)
	}

	if c.InputIndex < 0 || c.InputIndex >= len(packet.Inputs) {
		return fmt.Errorf("--input_index %d is out of range for a PSBT "+
			"with %d inputs", c.InputIndex, len(packet.Inputs))
	}
	pIn := &packet.Inputs[c.InputIndex]

	var sigs []descriptors.Signature
	for _, ps := range pIn.PartialSigs {
		sigs = append(sigs, descriptors.Signature{
			PubKey: ps.PubKey, Sig: ps.Signature,
		})
	}
	if len(pIn.TaprootKeySpendSig) > 0 {
		sigs = append(sigs, descriptors.Signature{
			PubKey: pIn.TaprootInternalKey, Sig: pIn.TaprootKeySpendSig,
		})
	}
	for _, tss := range pIn.TaprootScriptSpendSig {
		sigs = append(sigs, descriptors.Signature{
			PubKey: tss.XOnlyPubKey, Sig: tss.Signature,
		})
	}
	if len(sigs) == 0 {
		return fmt.Errorf("input %d has no partial signatures to "+
			"finalize with", c.InputIndex)
	}

	var hint *taproot.LeafHint
	leafHashBytes, err := decodeHexFlag("leaf_hash", c.LeafHash)
	if err != nil {
		return err
	}
	if len(leafHashBytes) > 0 || c.LeafScript != "" {
		hint = &taproot.LeafHint{LeafHash: leafHashBytes, Miniscript: c.LeafScript}
	}

	if err := out.FinalizePsbtInput(packet, c.InputIndex, sigs, hint, c.Validate); err != nil {
		return fmt.Errorf("error finalizing input %d: %w", c.InputIndex, err)
	}

	log.Infof("Finalized input %d against %s", c.InputIndex, c.flags.Descriptor)

	return c.psbtio.store(packet)
}
