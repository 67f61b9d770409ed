package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/bleid"
	"github.com/srg/blecentral/internal/platform/goble"
	"github.com/srg/blecentral/session"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <characteristic-uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: `Subscribes to BLE characteristic notifications and prints each received
value until interrupted.

Examples:
  # Heart-rate measurement stream
  blecentral subscribe AA:BB:CC:DD:EE:FF 2a37

  # Raw output instead of hex
  blecentral subscribe AA:BB:CC:DD:EE:FF 2a37 --raw`,
	Args: cobra.ExactArgs(2),
	RunE: runSubscribe,
}

var subscribeRaw bool

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeRaw, "raw", false, "Print raw bytes instead of hex")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address, uuidArg := args[0], args[1]

	id, err := bleid.ParseUUID(uuidArg)
	if err != nil {
		return err
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

	sub, err := sess.Subscribe(cmd.Context(), id, func(data []byte) {
		ts := time.Now().Format(time.RFC3339Nano)
		if subscribeRaw {
			fmt.Printf("%s %s\n", ts, data)
		} else {
			fmt.Printf("%s %s\n", ts, hex.EncodeToString(data))
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Cancel(); err != nil {
			logger.WithError(err).Warn("Canceling subscription failed")
		}
	}()

	fmt.Fprintf(os.Stderr, "Subscribed to %s, press Ctrl+C to stop\n", id)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
	case <-cmd.Context().Done():
	}
	return nil
}
