package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/internal/storage"
)

func newHistoryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and prune translation history",
	}

	cmd.AddCommand(newHistoryListCmd(e))
	cmd.AddCommand(newHistoryGetCmd(e))
	cmd.AddCommand(newHistoryDeleteCmd(e))
	cmd.AddCommand(newHistoryClearCmd(e))

	return cmd
}

func newHistoryListCmd(e *env) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List translations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := service.NewHistoryService(e.store).List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tSIZE\tCREATED")
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s ago\n",
					r.ID,
					r.OriginalFilename,
					units.HumanSize(float64(r.FileSize)),
					units.HumanDuration(time.Since(r.CreatedAt)),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", storage.DefaultListLimit, "Maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of records to skip")

	return cmd
}

func newHistoryGetCmd(e *env) *cobra.Command {
	var outPath string
	var original bool

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one translation or save its image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}

			rec, err := service.NewHistoryService(e.store).Get(cmd.Context(), id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("translation %d not found", id)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:        %d\n", rec.ID)
			fmt.Fprintf(out, "filename:  %s\n", rec.OriginalFilename)
			fmt.Fprintf(out, "size:      %s\n", units.HumanSize(float64(rec.FileSize)))
			fmt.Fprintf(out, "created:   %s\n", rec.CreatedAt.Format(time.RFC3339))

			if outPath == "" {
				return nil
			}
			data := rec.TranslatedImage
			if original {
				data = rec.OriginalImage
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outPath, err)
			}
			fmt.Fprintf(out, "saved:     %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the image to this file")
	cmd.Flags().BoolVar(&original, "original", false, "Write the original instead of the translation")

	return cmd
}

func newHistoryDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one translation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}

			result, err := service.NewHistoryService(e.store).Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !result.Deleted {
				return fmt.Errorf("translation %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}
}

func newHistoryClearCmd(e *env) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every translation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}

			result, err := service.NewHistoryService(e.store).Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d translations\n", result.DeletedCount)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm")

	return cmd
}

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
