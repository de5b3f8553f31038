package main

import (
	"fmt"

	"github.com/beyondbrewing/cask"
	"github.com/beyondbrewing/cask/config"
	"github.com/beyondbrewing/cask/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// database is opened before every subcommand and closed after it.
	database *cask.DB

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   config.APP_NAME,
		Short: "embedded transactional key-value and document store",
		Long: fmt.Sprintf(`%s (v%s)

Inspect and modify a cask database: raw keys, document collections and
scripts. Settings come from .env files and CASK_* variables; flags win.`, config.APP_NAME, config.APP_VERSION),
		Version:            config.APP_VERSION,
		SilenceUsage:       true,
		PersistentPreRunE:  openDatabase,
		PersistentPostRunE: closeDatabase,
	}
)

func init() {
	RootCmd.AddCommand(getCmd, putCmd, deleteCmd, keysCmd, countCmd)
	RootCmd.AddCommand(collectionsCmd, execCmd, statsCmd)

	RootCmd.PersistentFlags().String("db", "", "database directory, or :mem: (overrides CASK_PATH)")
	RootCmd.PersistentFlags().String("config", "", "env file to read instead of .env")
	RootCmd.PersistentFlags().Bool("read-only", false, "open the database read-only")
}

func openDatabase(cmd *cobra.Command, _ []string) error {
	if err := closeDatabase(cmd, nil); err != nil {
		return err
	}
	_ = godotenv.Load(".env.local")

	var files []string
	if f, _ := cmd.Flags().GetString("config"); f != "" {
		files = append(files, f)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Path = p
	}
	if ro, _ := cmd.Flags().GetBool("read-only"); ro {
		cfg.ReadOnly = true
	}

	l, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	logger.SetDefault(l)

	database, err = cask.OpenConfig(cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w (%s)", cfg.Path, err, cask.KindOf(err))
	}
	return nil
}

func closeDatabase(*cobra.Command, []string) error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}
