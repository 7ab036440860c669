package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/imgtranslate/api/internal/client"
	"github.com/imgtranslate/api/internal/model"
	"github.com/imgtranslate/api/internal/service"
)

type runOptions struct {
	outDir   string
	maxSize  string
	noBar    bool
	language string
}

func newRunCmd(e *env) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Translate one or more images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, e, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outDir, "out", "o", "", "Write translated images to this directory")
	flags.StringVar(&opts.maxSize, "max-size", "20MB", "Reject files larger than this")
	flags.BoolVar(&opts.noBar, "no-progress", false, "Disable the progress bar")
	flags.StringVar(&opts.language, "language", "", "Target language (defaults to GEMINI_TARGET_LANGUAGE)")

	return cmd
}

func runTranslate(cmd *cobra.Command, e *env, opts *runOptions, args []string) error {
	maxSize, err := units.FromHumanSize(opts.maxSize)
	if err != nil {
		return fmt.Errorf("invalid --max-size: %w", err)
	}

	items, err := loadItems(args, maxSize)
	if err != nil {
		return err
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	geminiCfg := e.cfg.Gemini
	if opts.language != "" {
		geminiCfg.TargetLanguage = opts.language
	}
	gemini := client.NewGeminiClient(&geminiCfg)
	if !gemini.IsConfigured() {
		return fmt.Errorf("GEMINI_API_KEY is not configured")
	}

	// Ctrl-C stops before the next image; finished ones stay in history
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar := newBar(cmd, len(items), opts.noBar)
	svc := service.NewTranslateService(gemini, e.store)

	report, err := svc.TranslateBatch(ctx, items, func(p model.BatchProgress) {
		if p.Current != "" {
			bar.Describe(p.Current)
			return
		}
		_ = bar.Set(p.Completed)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	return writeReport(cmd, report, opts.outDir)
}

func newBar(cmd *cobra.Command, total int, disabled bool) *progressbar.ProgressBar {
	if disabled {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)
}

func writeReport(cmd *cobra.Command, report *model.BatchReport, outDir string) error {
	out := cmd.OutOrStdout()
	taken := make(map[string]bool)

	for _, rec := range report.Results {
		line := fmt.Sprintf("#%d %s (%s)", rec.ID, rec.OriginalFilename, units.HumanSize(float64(rec.FileSize)))
		if outDir != "" {
			path := outputPath(outDir, rec, taken)
			if err := os.WriteFile(path, rec.TranslatedImage, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			line += " -> " + path
		}
		fmt.Fprintln(out, line)
	}

	for _, msg := range report.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}

	fmt.Fprintf(out, "%d/%d translated, %d failed", len(report.Results), report.Total, len(report.Errors))
	if report.Canceled {
		fmt.Fprintf(out, ", canceled after %d", report.Completed)
	}
	fmt.Fprintln(out)
	return nil
}
