package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/beyondbrewing/cask/value"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	collectionsCmd = &cobra.Command{
		Use:     "collections",
		Aliases: []string{"coll"},
		Short:   "Lists collections, or works on one with a subcommand",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := database.Collections()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	createCollectionCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Creates a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := database.Collection(args[0]).Create()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ok)
		},
	}
	dropCollectionCmd = &cobra.Command{
		Use:   "drop [name]",
		Short: "Drops a collection and all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := database.Collection(args[0]).Drop()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ok)
		},
	}
	storeCmd = &cobra.Command{
		Use:   "store [name] [json]",
		Short: "Stores a JSON object, or an array of objects, and prints the last id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := value.DecodeJSON([]byte(args[1]))
			if err != nil {
				return err
			}
			id, err := database.Collection(args[0]).Store(value.ToHost(doc))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), id)
		},
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch [name] [id]",
		Short: "Prints one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("id must be a number: %w", err)
			}
			rec, err := database.Collection(args[0]).Fetch(id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	allCmd = &cobra.Command{
		Use:   "all [name]",
		Short: "Prints every record of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := database.Collection(args[0]).All()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
)

func init() {
	collectionsCmd.AddCommand(createCollectionCmd, dropCollectionCmd, storeCmd, fetchCmd, allCmd)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
