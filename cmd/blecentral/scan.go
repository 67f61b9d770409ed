package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/blecentral/internal/platform/goble"
	"github.com/srg/blecentral/watcher"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Blocks until the device enumeration pass completes, then prints a snapshot
of every currently-known device with its name and address.`,
	RunE: runScan,
}

var (
	scanTimeout time.Duration
	scanFormat  string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanTimeout, "timeout", "t", 0, "Scan timeout (0 uses the configured default)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanFormat != "" {
		cfg.OutputFormat = scanFormat
	}
	if cfg.OutputFormat != "table" && cfg.OutputFormat != "json" {
		return fmt.Errorf("invalid format %q: must be table or json", cfg.OutputFormat)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	stack, err := goble.NewStack(logger)
	if err != nil {
		return err
	}

	opts := cfg.WatcherOptions()
	if scanTimeout > 0 {
		opts.ScanTimeout = scanTimeout
	}

	w, err := watcher.New(stack, opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			logger.WithError(err).Warn("Closing watcher failed")
		}
	}()

	if err := w.Start(); err != nil {
		return err
	}

	results, err := w.Scan(cmd.Context())
	if err != nil {
		return err
	}

	return printScanResults(results, cfg.OutputFormat)
}

func printScanResults(results []watcher.ScanResult, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	// Color only when stdout is a terminal
	header := fmt.Sprintf
	if term.IsTerminal(int(os.Stdout.Fd())) {
		header = color.New(color.Bold).Sprintf
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header("NAME\tADDRESS"))
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, r.Address)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d device(s) found\n", len(results))
	return nil
}
