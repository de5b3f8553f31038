package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/beyondbrewing/cask"
	"github.com/beyondbrewing/cask/value"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [file]",
	Short: "Runs a script against the database",
	Long: `Runs a script from a file, or from --eval, against the database.
Variables are bound with --var name=json. What the script prints goes to
stdout; --dump and --dump-all print globals as JSON after the run. --txn
runs the script in one transaction.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, _ := cmd.Flags().GetString("eval")
		switch {
		case len(args) == 1 && src != "":
			return errors.New("give either a file or --eval, not both")
		case len(args) == 1:
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			src = string(b)
		case src == "":
			return errors.New("nothing to run: give a file or --eval")
		}

		vm, err := database.VM(src)
		if err != nil {
			return fmt.Errorf("%w (%s)", err, cask.KindOf(err))
		}
		defer vm.Close()

		vars, _ := cmd.Flags().GetStringArray("var")
		for _, kv := range vars {
			name, raw, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("--var %q: want name=json", kv)
			}
			v, err := value.DecodeJSON([]byte(raw))
			if err != nil {
				return fmt.Errorf("--var %s: %w", name, err)
			}
			vm.BindValue(strings.TrimPrefix(name, "$"), v)
		}

		run := func() error { return vm.Execute(cmd.Context()) }
		if txn, _ := cmd.Flags().GetBool("txn"); txn {
			err = database.KV().WithTransaction(run)
		} else {
			err = run()
		}
		fmt.Fprint(cmd.OutOrStdout(), vm.Output())
		for _, msg := range vm.ErrLog() {
			fmt.Fprintln(cmd.ErrOrStderr(), msg)
		}
		if err != nil {
			return fmt.Errorf("%w (%s)", err, cask.KindOf(err))
		}

		names, _ := cmd.Flags().GetStringSlice("dump")
		all, _ := cmd.Flags().GetBool("dump-all")
		if !all && len(names) == 0 {
			return nil
		}
		out := vm.Exports()
		if !all {
			out = make(map[string]any, len(names))
			for _, n := range names {
				out[n], _ = vm.Extract(strings.TrimPrefix(n, "$"))
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	execCmd.Flags().StringP("eval", "e", "", "script source")
	execCmd.Flags().StringArray("var", nil, "bind a global, name=json (repeatable)")
	execCmd.Flags().StringSlice("dump", nil, "print these globals as JSON after the run")
	execCmd.Flags().Bool("dump-all", false, "print every global as JSON after the run")
	execCmd.Flags().Bool("txn", false, "run the script inside a transaction")
}
