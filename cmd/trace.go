// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/dxlink/pkg/dxl"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Print a recorded CBOR trace",
	Long: `Print the records of a trace captured with --trace.

Written frames are decoded as requests. Received bytes are run through a bus
monitor decoder, so status frames show up once all of their bytes have been
read, whatever the read sizes were. The protocol revision comes from
--protocol.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
	cfg, err := settings.ConnConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	records, err := dxl.ReadTrace(f)
	if err != nil {
		return err
	}
	return printTrace(os.Stdout, records, cfg.Revision)
}

// printTrace writes one line per record, plus the frames decoded from
// received bytes.
func printTrace(w io.Writer, records []dxl.TraceRecord, rev dxl.Revision) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "(empty trace)")
		return nil
	}

	start := time.Unix(0, records[0].Time)
	sniffer := dxl.NewSniffer(rev)

	for i, rec := range records {
		offset := time.Unix(0, rec.Time).Sub(start)
		fmt.Fprintf(w, "%4d %+10.3fms %s %s", i, float64(offset.Microseconds())/1000, rec.Dir, dxl.FormatHex(rec.Data))
		if rec.Err != "" {
			fmt.Fprintf(w, "  error: %s", rec.Err)
		}
		fmt.Fprintln(w)

		switch rec.Dir {
		case dxl.TraceTx:
			// A new request; whatever was left of the last reply is stale
			sniffer.Reset()
			if req, err := dxl.DecodeRequest(rev, rec.Data); err == nil {
				fmt.Fprintf(w, "     > %s\n", dxl.FormatRequest(req))
			} else {
				fmt.Fprintf(w, "     > undecodable: %v\n", err)
			}
		case dxl.TraceRx:
			for _, r := range sniffer.Feed(rec.Data) {
				if r.Err != nil {
					fmt.Fprintf(w, "     < %v\n", r.Err)
					continue
				}
				fmt.Fprintf(w, "     < %s", dxl.FormatFrame(r.Frame))
			}
		}
	}
	return nil
}
