// Package cli implements the translate command-line tool.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/imgtranslate/api/internal/config"
	"github.com/imgtranslate/api/internal/storage"
	"github.com/imgtranslate/api/pkg/logging"
)

// Version is set at build time.
var Version = "dev"

// env holds what every subcommand shares.
type env struct {
	cfg     *config.Config
	dbPath  string
	verbose bool
	store   *storage.HistoryStore
}

// Execute runs the CLI with args and releases the database afterwards.
func Execute(args []string, stdout, stderr io.Writer) error {
	e := &env{}
	defer e.close()

	cmd := newRootCmd(e)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the text in images and manage translation history",
		Long: `translate sends images to the Gemini image model, which redraws them with
their text translated, and keeps every result in the local history database.

Examples:
  # Translate a folder of pages and write the results next to them
  translate run --out ./translated ./pages/*.png

  # Show the ten most recent translations
  translate history list --limit 10

  # Save a translated image from history
  translate history get 42 --out page.png`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd.ErrOrStderr())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&e.dbPath, "db", "", "Path to the history database (defaults to DATABASE_PATH)")
	flags.BoolVarP(&e.verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newRunCmd(e))
	rootCmd.AddCommand(newHistoryCmd(e))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (e *env) setup(logOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if e.dbPath != "" {
		cfg.Database.Path = e.dbPath
	}
	e.cfg = cfg

	level := "warn"
	if e.verbose {
		level = "debug"
	}
	slog.SetDefault(logging.NewWithWriter(logOut, level, logging.FormatText))

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	e.store = store
	return nil
}

func (e *env) close() error {
	if e.store == nil {
		return nil
	}
	err := e.store.Close()
	e.store = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// no config or database needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("translate %s\n", Version)
		},
	}
}
