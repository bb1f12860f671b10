package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/spf13/cobra"
)

// psbtIOFlags mirrors cmd/chantools/signpsbt.go's load/serialize flag
// pattern: a PSBT can be supplied/returned either as a base64 string on the
// command line or as a raw binary file.
type psbtIOFlags struct {
	Psbt            string
	FromRawPsbtFile string
	ToRawPsbtFile   string
}

func newPsbtIOFlags(cmd *cobra.Command) *psbtIOFlags {
	f := &psbtIOFlags{}
	cmd.Flags().StringVar(
		&f.Psbt, "psbt", "", "the base64 encoded PSBT to update/finalize",
	)
	cmd.Flags().StringVar(
		&f.FromRawPsbtFile, "fromrawpsbtfile", "", "the file containing "+
			"the raw, binary encoded PSBT packet to update/finalize",
	)
	cmd.Flags().StringVar(
		&f.ToRawPsbtFile, "torawpsbtfile", "", "the file to write the "+
			"resulting raw, binary encoded PSBT packet to; leave "+
			"empty to print the base64 encoding to stdout",
	)

	return f
}

func (f *psbtIOFlags) load() (*psbt.Packet, error) {
	switch {
	case f.Psbt != "":
		return psbt.NewFromRawBytes(bytes.NewReader([]byte(f.Psbt)), true)

	case f.FromRawPsbtFile != "":
		file, err := os.Open(f.FromRawPsbtFile)
		if err != nil {
			return nil, fmt.Errorf("error opening PSBT file '%s': %w",
				f.FromRawPsbtFile, err)
		}
		defer file.Close()

		return psbt.NewFromRawBytes(file, false)

	default:
		return nil, fmt.Errorf("either --psbt or --fromrawpsbtfile must " +
			"be set")
	}
}

func (f *psbtIOFlags) store(packet *psbt.Packet) error {
	if f.ToRawPsbtFile != "" {
		file, err := os.Create(f.ToRawPsbtFile)
		if err != nil {
			return fmt.Errorf("error creating PSBT file '%s': %w",
				f.ToRawPsbtFile, err)
		}
		defer file.Close()

		if err := packet.Serialize(file); err != nil {
			return fmt.Errorf("error serializing PSBT to file '%s': "+
				"%w", f.ToRawPsbtFile, err)
		}

		fmt.Printf("Wrote PSBT to file '%s'\n", f.ToRawPsbtFile)
		return nil
	}

	var buf bytes.Buffer
	if err := packet.Serialize(&buf); err != nil {
		return fmt.Errorf("error serializing PSBT: %w", err)
	}

	fmt.Println(base64.StdEncoding.EncodeToString(buf.Bytes()))
	return nil
}
