// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/spf13/cobra"
)

var getSigned bool

var getCmd = &cobra.Command{
	Use:   "get ID MODEL FIELD",
	Short: "Read a named control table field",
	Long: `Read a field by name, using the control table of MODEL.

The model's protocol revision must match --protocol. Use "dxlink models" to
list the known models and "dxlink models MODEL" to list a model's fields.`,
	Args: cobra.ExactArgs(3),
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set ID MODEL FIELD VALUE",
	Short: "Write a named control table field",
	Long: `Write a field by name, using the control table of MODEL.

Read-only fields and values wider than the field are rejected before anything
is sent.`,
	Args: cobra.ExactArgs(4),
	RunE: runSet,
}

var dumpCmd = &cobra.Command{
	Use:   "dump ID MODEL",
	Short: "Read every field of a model's control table",
	Args:  cobra.ExactArgs(2),
	RunE:  runDump,
}

var modelsCmd = &cobra.Command{
	Use:   "models [MODEL]",
	Short: "List known models, or the fields of one model",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(getCmd, setCmd, dumpCmd, modelsCmd)
	getCmd.Flags().BoolVar(&getSigned, "signed", false, "Sign-extend the value to the field width")
}

// openRegisters opens the bus and binds the named model to it.
func openRegisters(modelName string) (*Bus, *dxl.Registers, error) {
	table, err := settings.ControlTable()
	if err != nil {
		return nil, nil, err
	}
	model, err := table.Model(modelName)
	if err != nil {
		return nil, nil, err
	}

	bus := openBusOrExit()
	regs, err := dxl.NewRegisters(bus.Conn, model)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	return bus, regs, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	bus, regs, err := openRegisters(args[1])
	if err != nil {
		return err
	}
	defer bus.Close()

	name := args[2]
	if getSigned {
		v, err := regs.GetSigned(id, name)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %d\n", strings.ToLower(name), v)
		return nil
	}

	v, err := regs.Get(id, name)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %d (0x%X)\n", strings.ToLower(name), v, v)
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	value, err := parseUint("value", args[3], 32)
	if err != nil {
		return err
	}
	bus, regs, err := openRegisters(args[1])
	if err != nil {
		return err
	}
	defer bus.Close()

	status, err := regs.Set(id, args[2], uint32(value))
	if err != nil {
		return err
	}
	printStatus(fmt.Sprintf("%s = %d", strings.ToLower(args[2]), value), status)
	return status.Err()
}

func runDump(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	bus, regs, err := openRegisters(args[1])
	if err != nil {
		return err
	}
	defer bus.Close()

	values, errs := readFields(regs, id, regs.Model().FieldNames())
	fmt.Printf("%s id=%d (%s)\n", regs.Model().Name, id, bus.Info)
	fmt.Print(dxl.FormatFields(regs.Model(), values))

	for _, name := range regs.Model().FieldNames() {
		if err, ok := errs[name]; ok {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", name, err)
		}
	}
	if len(values) == 0 && len(errs) > 0 {
		return fmt.Errorf("no field could be read")
	}
	return nil
}

// readFields reads the named fields, stopping early once the bus itself fails.
func readFields(regs *dxl.Registers, id uint8, names []string) (map[string]uint32, map[string]error) {
	values := make(map[string]uint32, len(names))
	errs := make(map[string]error)
	for _, name := range names {
		v, err := regs.Get(id, name)
		if err != nil {
			errs[name] = err
			if errors.Is(err, dxl.ErrTransport) {
				break
			}
			continue
		}
		values[name] = v
	}
	return values, errs
}

func runModels(cmd *cobra.Command, args []string) error {
	table, err := settings.ControlTable()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		model, err := table.Model(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s, model number %d)\n", model.Name, model.Revision, model.ModelNumber)
		for _, name := range model.FieldNames() {
			f := model.Fields[name]
			fmt.Printf("  %-24s @%-4d size %d  %s\n", name, f.Address, f.Size, f.Access)
		}
		return nil
	}

	names := make([]string, 0, len(table.Models))
	for name := range table.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := table.Models[name]
		fmt.Printf("%-16s %s  model number %-5d %d fields\n", m.Name, m.Revision, m.ModelNumber, len(m.Fields))
	}
	return nil
}
