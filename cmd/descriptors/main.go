// Package main implements the descriptors CLI: a cobra-based front end for
// parsing output descriptors, printing the address/scripts they resolve to,
// and wiring them into PSBTs, grounded on cmd/chantools/root.go's command
// registration and logging setup.
package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/build"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	Testnet bool
	Regtest bool

	logWriter   = build.NewRotatingLogWriter()
	log         = build.NewSubLogger("DESC", genSubLogger(logWriter))
	chainParams = &chaincfg.MainNetParams
)

var rootCmd = &cobra.Command{
	Use:   "descriptors",
	Short: "Parse Bitcoin output descriptors and wire them into PSBTs",
	Long: `This tool parses output descriptors (BIP380 and friends, including
miniscript and taproot descriptors), prints the scripts and addresses they
resolve to, and updates/finalizes PSBTs that spend or pay to them.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		switch {
		case Testnet:
			chainParams = &chaincfg.TestNet3Params
		case Regtest:
			chainParams = &chaincfg.RegressionNetParams
		default:
			chainParams = &chaincfg.MainNetParams
		}
		setupLogging()
	},
	DisableAutoGenTag: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(
		&Testnet, "testnet", "t", false, "use testnet parameters",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&Regtest, "regtest", "r", false, "use regtest parameters",
	)

	rootCmd.AddCommand(
		newParseCommand(),
		newAddressCommand(),
		newUpdatePsbtCommand(),
		newFinalizePsbtCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	logWriter.RegisterSubLogger("DESC", log)
	if err := build.ParseAndSetDebugLevels("info", logWriter); err != nil {
		panic(err)
	}
}

func genSubLogger(logWriter *build.RotatingLogWriter) func(string) btclog.Logger {
	return func(s string) btclog.Logger {
		return logWriter.GenSubLogger(s, func() {})
	}
}
