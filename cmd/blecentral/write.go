package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform/goble"
	"github.com/srg/blecentral/session"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <characteristic-uuid> <data>",
	Short: "Write to a characteristic",
	Long: `Writes data to a BLE characteristic.

Examples:
  # Write a string value
  blecentral write AA:BB:CC:DD:EE:FF 2a06 "high"

  # Write hex bytes
  blecentral write AA:BB:CC:DD:EE:FF 2a06 0102 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var writeHex bool

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, uuidArg, dataArg := args[0], args[1], args[2]

	id, err := bleid.ParseUUID(uuidArg)
	if err != nil {
		return err
	}
	data, err := parseWriteData(dataArg)
	if err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}

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

	sess, err := session.Connect(cmd.Context(), stack, nil, address, cfg.SessionOptions(), logger)
	if err != nil {
		return err
	}
	defer sess.Disconnect()

	if err := sess.Write(cmd.Context(), id, data); err != nil {
		return err
	}

	fmt.Printf("Wrote %d byte(s) to %s\n", len(data), id)
	return nil
}

func parseWriteData(s string) ([]byte, error) {
	if !writeHex {
		return []byte(s), nil
	}
	cleaned := strings.ReplaceAll(strings.TrimPrefix(s, "0x"), " ", "")
	return hex.DecodeString(cleaned)
}
