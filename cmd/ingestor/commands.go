package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"pnr_quality/internal/domain"
)

type opener func(cmd *cobra.Command) (context.Context, *services, func(), error)

func newImportCommand(open opener) *cobra.Command {
	var file, url string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored dataset with one booking extract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && url != "" {
				return errors.New("use either --file or --url, not both")
			}
			ctx, s, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()

			if file == "" && s.cfg.SourceURL == "" {
				if url == "" {
					return errors.New("one of --file or SBR_SOURCE_URL is required")
				}
				return errors.New("--url needs SBR_SOURCE_URL to name the feed")
			}
			var run domain.ImportRun
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				run, err = s.imp.ImportReader(ctx, filepath.Base(file), f)
				if err != nil {
					return err
				}
			} else if run, err = s.imp.ImportURL(ctx, url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRun(run))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a CSV extract")
	cmd.Flags().StringVar(&url, "url", "", "Path or URL of an extract on the SBR_SOURCE_URL feed (default the feed URL)")
	return cmd
}

func newClearCommand(open opener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every PNR, passenger and contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			ctx, s, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := s.imp.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dataset cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newSummaryCommand(open opener) *cobra.Command {
	var by string
	var offices []string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print quality scores grouped by office, delivery system or period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, done, err := open(cmd)
			if err != nil {
				return err
			}
			defer done()

			f := domain.PNRFilter{Offices: offices}
			st, err := s.q.Stats(ctx, f)
			if err != nil {
				return err
			}
			groups, err := s.q.Groups(ctx, f, by)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d PNRs, average score %s, %s%% reachable\n\n",
				st.TotalPNRs, strconv.FormatFloat(st.AvgScore, 'f', 2, 64), strconv.FormatFloat(st.ReachablePct, 'f', 2, 64))
			fmt.Fprintln(out, renderGroups(by, groups))
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "office", "Grouping: office, delivery_system, day, week or month")
	cmd.Flags().StringSliceVar(&offices, "office", nil, "Restrict to these office ids")
	return cmd
}
