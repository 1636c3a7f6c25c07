// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/spf13/cobra"
)

var (
	writeValue    string
	writeSize     int
	writeDeferred bool

	resetMode string
	resetYes  bool
)

// Multi-turn position counter clear sequence
var clearMultiTurn = []byte{0x01, 0x44, 0x58, 0x4C, 0x22}

var readCmd = &cobra.Command{
	Use:   "read ID ADDR LEN",
	Short: "Read raw bytes from a device's control table",
	Long: `Read LEN bytes starting at control table address ADDR.

Values up to four bytes wide are also shown as little-endian integers.
Numbers may be decimal or 0x-prefixed hex.`,
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write ID ADDR [HEX...]",
	Short: "Write raw bytes to a device's control table",
	Long: `Write bytes starting at control table address ADDR.

Data is given either as hex bytes ("write 1 116 00 02 00 00") or as an
integer with --value and --size ("write 1 116 --value 512 --size 4").

With --deferred the write is staged (REG_WRITE) and takes effect on ACTION.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWrite,
}

var actionCmd = &cobra.Command{
	Use:   "action [ID]",
	Short: "Execute staged writes (default: all devices)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAction,
}

var rebootCmd = &cobra.Command{
	Use:   "reboot ID",
	Short: "Restart a device (v2 only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimple(args[0], "REBOOT", (*dxl.Conn).Reboot)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear ID",
	Short: "Clear the multi-turn position counter (v2 only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimple(args[0], "CLEAR", func(c *dxl.Conn, id uint8) (*dxl.Status, error) {
			return c.Clear(id, clearMultiTurn)
		})
	},
}

var factoryResetCmd = &cobra.Command{
	Use:   "factory-reset ID",
	Short: "Restore a device's control table defaults",
	Long: `Restore the control table defaults of a device.

v2 devices accept a mode: all, except-id (keep the id) or except-id-baud
(keep id and baud rate). v1 devices always reset everything, including the
id, which becomes 1.

Requires --yes.`,
	Args: cobra.ExactArgs(1),
	RunE: runFactoryReset,
}

var syncWriteCmd = &cobra.Command{
	Use:   "sync-write ADDR SIZE ID=VALUE...",
	Short: "Write one register on several devices with a single frame",
	Long: `Write SIZE bytes at ADDR on several devices with one broadcast
SYNC_WRITE frame, e.g. "sync-write 30 2 1=512 2=600". No replies are read.`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSyncWrite,
}

func init() {
	rootCmd.AddCommand(readCmd, writeCmd, actionCmd, rebootCmd, clearCmd, factoryResetCmd, syncWriteCmd)

	writeCmd.Flags().StringVar(&writeValue, "value", "", "Integer value to write (little-endian)")
	writeCmd.Flags().IntVar(&writeSize, "size", 0, "Width of --value in bytes (1, 2 or 4)")
	writeCmd.Flags().BoolVar(&writeDeferred, "deferred", false, "Stage the write with REG_WRITE")

	factoryResetCmd.Flags().StringVar(&resetMode, "mode", "except-id-baud", "Reset mode: all, except-id, except-id-baud")
	factoryResetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm the reset")
}

func runRead(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	addr, err := parseUint("address", args[1], 16)
	if err != nil {
		return err
	}
	length, err := parseUint("length", args[2], 16)
	if err != nil {
		return err
	}

	bus := openBusOrExit()
	defer bus.Close()

	status, err := bus.Conn.ReadStatus(id, uint16(addr), int(length))
	if err != nil {
		return err
	}
	if status == nil {
		return fmt.Errorf("%w: no reply expected with the current settings", dxl.ErrConfig)
	}

	fmt.Printf("id=%d addr=%d len=%d: %s\n", id, addr, length, dxl.FormatHex(status.Params))
	if v, ok := littleEndian(status.Params); ok {
		fmt.Printf("value: %d (0x%0*X)\n", v, len(status.Params)*2, v)
	}
	return status.Err()
}

func runWrite(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	addr, err := parseUint("address", args[1], 16)
	if err != nil {
		return err
	}
	data, err := writeData(args[2:], writeValue, writeSize)
	if err != nil {
		return err
	}

	bus := openBusOrExit()
	defer bus.Close()

	op := bus.Conn.Write
	if writeDeferred {
		op = bus.Conn.RegWrite
	}
	status, err := op(id, uint16(addr), data)
	if err != nil {
		return err
	}
	printStatus(fmt.Sprintf("wrote %s at %d", dxl.FormatHex(data), addr), status)
	return status.Err()
}

func runAction(cmd *cobra.Command, args []string) error {
	target := "broadcast"
	if len(args) == 1 {
		target = args[0]
	}
	return runSimple(target, "ACTION", (*dxl.Conn).Action)
}

func runFactoryReset(cmd *cobra.Command, args []string) error {
	mode, err := parseResetMode(resetMode)
	if err != nil {
		return err
	}
	if !resetYes {
		return fmt.Errorf("factory reset erases device settings; rerun with --yes")
	}
	return runSimple(args[0], "FACTORY_RESET", func(c *dxl.Conn, id uint8) (*dxl.Status, error) {
		return c.FactoryReset(id, mode)
	})
}

func runSyncWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseUint("address", args[0], 16)
	if err != nil {
		return err
	}
	size, err := parseUint("size", args[1], 8)
	if err != nil {
		return err
	}
	data, err := parseAssignments(args[2:], int(size))
	if err != nil {
		return err
	}

	bus := openBusOrExit()
	defer bus.Close()

	if err := bus.Conn.SyncWrite(uint16(addr), int(size), data); err != nil {
		return err
	}
	fmt.Printf("SYNC_WRITE addr=%d size=%d to %d device(s)\n", addr, size, len(data))
	return nil
}

// runSimple runs a parameterless instruction against one device.
func runSimple(idArg, name string, op func(*dxl.Conn, uint8) (*dxl.Status, error)) error {
	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	bus := openBusOrExit()
	defer bus.Close()

	status, err := op(bus.Conn, id)
	if err != nil {
		return err
	}
	printStatus(name, status)
	return status.Err()
}

func printStatus(what string, status *dxl.Status) {
	if status == nil {
		fmt.Printf("%s: sent (no reply expected)\n", what)
		return
	}
	fmt.Printf("%s: %s\n", what, dxl.FormatStatus(status))
}

// writeData builds the bytes to write from hex arguments or an integer value.
func writeData(hexArgs []string, value string, size int) ([]byte, error) {
	if value != "" {
		if len(hexArgs) > 0 {
			return nil, fmt.Errorf("give either hex bytes or --value, not both")
		}
		switch size {
		case 1, 2, 4:
		default:
			return nil, fmt.Errorf("--size must be 1, 2 or 4, got %d", size)
		}
		v, err := parseUint("value", value, size*8)
		if err != nil {
			return nil, err
		}
		return putLittleEndian(v, size), nil
	}

	if len(hexArgs) == 0 {
		return nil, fmt.Errorf("nothing to write: give hex bytes or --value")
	}
	return parseHexBytes(hexArgs)
}

// parseHexBytes decodes hex given as separate bytes or one run, e.g.
// "00 02" or "0002" or "00:02".
func parseHexBytes(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return b, nil
}

// parseAssignments parses ID=VALUE pairs into little-endian values of size bytes.
func parseAssignments(args []string, size int) (map[uint8][]byte, error) {
	if size < 1 || size > 4 {
		return nil, fmt.Errorf("size must be 1-4, got %d", size)
	}
	out := make(map[uint8][]byte, len(args))
	for _, arg := range args {
		idStr, valStr, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q (want ID=VALUE)", arg)
		}
		id, err := parseID(idStr)
		if err != nil {
			return nil, err
		}
		if id > dxl.MaxID {
			return nil, fmt.Errorf("invalid assignment %q: id must be 0-%d", arg, dxl.MaxID)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("id %d assigned twice", id)
		}
		v, err := parseUint("value", valStr, size*8)
		if err != nil {
			return nil, err
		}
		out[id] = putLittleEndian(v, size)
	}
	return out, nil
}

func parseResetMode(s string) (uint8, error) {
	modes := map[string]uint8{
		"all":            dxl.ResetAll,
		"except-id":      dxl.ResetExceptID,
		"except-id-baud": dxl.ResetExceptIDBaud,
	}
	mode, ok := modes[strings.ToLower(s)]
	if !ok {
		names := make([]string, 0, len(modes))
		for name := range modes {
			names = append(names, name)
		}
		sort.Strings(names)
		return 0, fmt.Errorf("invalid reset mode %q (use %s)", s, strings.Join(names, ", "))
	}
	return mode, nil
}

func putLittleEndian(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func littleEndian(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) > 4 {
		return 0, false
	}
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}
	return v, true
}
