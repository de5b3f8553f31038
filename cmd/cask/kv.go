package main

import (
	"fmt"

	"github.com/beyondbrewing/cask"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Prints the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := database.KV().Get([]byte(args[0]))
			if err != nil {
				return fmt.Errorf("get %q: %w (%s)", args[0], err, cask.KindOf(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores a value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if appendValue, _ := cmd.Flags().GetBool("append"); appendValue {
				return database.KV().Append([]byte(args[0]), []byte(args[1]))
			}
			return database.KV().Put([]byte(args[0]), []byte(args[1]))
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Removes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.KV().Delete([]byte(args[0])); err != nil {
				return fmt.Errorf("delete %q: %w (%s)", args[0], err, cask.KindOf(err))
			}
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys [start] [end]",
		Short: "Lists keys in order, optionally from start up to and including end",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end []byte
			if len(args) > 0 {
				start = []byte(args[0])
			}
			if len(args) > 1 {
				end = []byte(args[1])
			}
			withValues, _ := cmd.Flags().GetBool("values")
			for k, v := range database.KV().Range(start, end, true) {
				if withValues {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", k, v)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), string(k))
				}
			}
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Prints the number of keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := database.KV().Count()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
)

func init() {
	putCmd.Flags().Bool("append", false, "append to the existing value")
	keysCmd.Flags().Bool("values", false, "print values next to keys")
}
