// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping ID",
	Short: "Check whether a device answers",
	Long: `Send PING requests to a device and wait for its status reply.

v2 devices report their model number and firmware version; the model name is
looked up in the control table.

This is useful for verifying:
  - The device id and baud rate are right
  - The direction line releases the bus in time for the reply
  - The echo settings match the transceiver

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	table, err := settings.ControlTable()
	if err != nil {
		return err
	}

	bus := openBusOrExit()
	defer bus.Close()

	fmt.Printf("dxlink - Ping\n")
	fmt.Printf("Connection: %s\n", bus.Info)
	fmt.Printf("Protocol: %s, timeout %v\n", bus.Conn.Revision(), settings.Timeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		info, err := bus.Conn.Ping(id)
		rtt := time.Since(startTime)

		switch {
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		case info == nil:
			fmt.Printf("sent, no reply expected (multiplicity 0)\n")
			successCount++
		default:
			fmt.Printf("reply from id=%d, %s, alarm=%s, rtt=%v\n",
				info.ID, describeModel(table, bus.Conn.Revision(), info), info.Alarm, rtt.Round(time.Microsecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if err := bus.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

func describeModel(table *dxl.ControlTable, rev dxl.Revision, info *dxl.PingInfo) string {
	if rev != dxl.V2 {
		return "model not reported"
	}
	name := "unknown model"
	if m, err := table.ModelByNumber(rev, info.ModelNumber); err == nil {
		name = m.Name
	}
	return fmt.Sprintf("model=%d (%s) firmware=%d", info.ModelNumber, name, info.Firmware)
}
