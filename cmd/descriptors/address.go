package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type addressCommand struct {
	flags *descriptorFlags
	cmd   *cobra.Command
}

func newAddressCommand() *cobra.Command {
	cc := &addressCommand{}
	cc.cmd = &cobra.Command{
		Use:   "address",
		Short: "Print the address a descriptor resolves to",
		Long: `Address parses an output descriptor and prints only its
address encoding. Fails for descriptor forms with no standard address,
such as a bare pk(...).`,
		Example: `descriptors address --descriptor "tr(xpub.../0/0)"`,
		RunE:    cc.Execute,
	}
	cc.flags = newDescriptorFlags(cc.cmd)

	return cc.cmd
}

func (c *addressCommand) Execute(_ *cobra.Command, _ []string) error {
	out, err := c.flags.parse()
	if err != nil {
		return fmt.Errorf("error parsing descriptor: %w", err)
	}

	addr, err := out.GetAddress()
	if err != nil {
		return fmt.Errorf("error getting address: %w", err)
	}

	fmt.Println(addr)

	return nil
}
