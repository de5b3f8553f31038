package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints key and collection counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var keys int64
		var size uint64
		for k, v := range database.KV().Items() {
			keys++
			size += uint64(len(k) + len(v))
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "path\t%s\n", database.KV().Path())
		fmt.Fprintf(w, "keys\t%s\n", humanize.Comma(keys))
		fmt.Fprintf(w, "key/value bytes\t%s\n", humanize.Bytes(size))

		names, err := database.Collections()
		if err != nil {
			return err
		}
		for _, name := range names {
			n, err := database.Collection(name).Len()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "collection %s\t%s records\n", name, humanize.Comma(n))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if m, _ := cmd.Flags().GetBool("metrics"); m {
			database.KV().WriteMetrics(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("metrics", false, "also print the store counters in Prometheus format")
}
