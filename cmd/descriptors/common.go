package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lightninglabs/chantools/descriptors"
)

// descriptorFlags mirrors cmd/chantools's per-command flag-struct pattern:
// a struct of raw flag values plus a parse step that turns them into the
// library's Options.
type descriptorFlags struct {
	Descriptor       string
	Index            int32
	Change           int32
	RelaxedShMS      bool
	ShAssumesSegwit  bool
	TaprootSpendPath string
}

func newDescriptorFlags(cmd *cobra.Command) *descriptorFlags {
	f := &descriptorFlags{}
	cmd.Flags().StringVar(
		&f.Descriptor, "descriptor", "", "the output descriptor to parse",
	)
	cmd.Flags().Int32Var(
		&f.Index, "index", -1, "the wildcard index to substitute into a "+
			"ranged descriptor; leave unset for a non-ranged descriptor",
	)
	cmd.Flags().Int32Var(
		&f.Change, "change", -1, "the multipath value to substitute into "+
			"a <a;b;...> descriptor; leave unset for a non-multipath "+
			"descriptor",
	)
	cmd.Flags().BoolVar(
		&f.RelaxedShMS, "relaxed_sh_ms", false, "allow any miniscript "+
			"fragment at the top level of sh(...), not just "+
			"pk/pkh/multi/sortedmulti/multi_a/sortedmulti_a",
	)
	cmd.Flags().BoolVar(
		&f.ShAssumesSegwit, "sh_assumes_segwit", false, "when parsing a "+
			"bare addr(...) that decodes to a P2SH address, assume it "+
			"is a nested sh(wpkh(...)) instead of legacy P2SH",
	)
	cmd.Flags().StringVar(
		&f.TaprootSpendPath, "taproot_spend_path", "", "force a taproot "+
			"descriptor's PSBT metadata to \"key\" or \"script\"; "+
			"leave empty to include both",
	)

	return f
}

func (f *descriptorFlags) options() (descriptors.Options, error) {
	opts := descriptors.Options{
		Network:                chainParams,
		RelaxedShMS:            f.RelaxedShMS,
		ShAddressAssumesSegwit: f.ShAssumesSegwit,
		Warn: func(msg string) {
			log.Warnf("%s", msg)
		},
	}
	if f.Index >= 0 {
		idx := uint32(f.Index)
		opts.Index = &idx
	}
	if f.Change >= 0 {
		chg := uint32(f.Change)
		opts.Change = &chg
	}

	switch f.TaprootSpendPath {
	case "":
		opts.TaprootSpendPath = descriptors.SpendPathUnspecified
	case "key":
		opts.TaprootSpendPath = descriptors.SpendPathKey
	case "script":
		opts.TaprootSpendPath = descriptors.SpendPathScript
	default:
		return opts, fmt.Errorf("unknown taproot_spend_path %q, must be "+
			"\"key\" or \"script\"", f.TaprootSpendPath)
	}

	return opts, nil
}

func (f *descriptorFlags) parse() (*descriptors.Output, error) {
	if f.Descriptor == "" {
		return nil, fmt.Errorf("--descriptor is required")
	}
	opts, err := f.options()
	if err != nil {
		return nil, err
	}
	return descriptors.Parse(f.Descriptor, opts)
}

func decodeHexFlag(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in --%s: %w", name, err)
	}
	return b, nil
}
