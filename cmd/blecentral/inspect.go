package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/platform"
	"github.com/srg/blecentral/internal/platform/goble"
	"github.com/srg/blecentral/session"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect a device's GATT topology",
	Long: `Connects to a device and lists every discovered characteristic with its
owning service, declared properties and Bluetooth SIG assigned name.

The address accepts both separator styles: AA:BB:CC:DD:EE:FF and
aabbccddeeff.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	stack, err := goble.NewStack(logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	sess, err := session.Connect(cmd.Context(), stack, nil, args[0], cfg.SessionOptions(), logger)
	if err != nil {
		return err
	}
	defer sess.Disconnect()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tCHARACTERISTIC\tPROPERTIES\tNAME")
	for _, c := range sess.Characteristics() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			c.ServiceUUID(), c.UUID(), formatProperties(c.Properties()), c.KnownName())
	}
	return tw.Flush()
}

func formatProperties(p platform.Property) string {
	var parts []string
	if p.Has(platform.PropertyBroadcast) {
		parts = append(parts, "broadcast")
	}
	if p.Has(platform.PropertyRead) {
		parts = append(parts, "read")
	}
	if p.Has(platform.PropertyWriteWithoutResponse) {
		parts = append(parts, "write-no-rsp")
	}
	if p.Has(platform.PropertyWrite) {
		parts = append(parts, "write")
	}
	if p.Has(platform.PropertyNotify) {
		parts = append(parts, "notify")
	}
	if p.Has(platform.PropertyIndicate) {
		parts = append(parts, "indicate")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
