package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/sourcedigger/pkg/autocomplete"
	"github.com/odvcencio/sourcedigger/pkg/metrics"
	"github.com/odvcencio/sourcedigger/pkg/organize"
	"github.com/odvcencio/sourcedigger/pkg/pipeline"
	"github.com/odvcencio/sourcedigger/pkg/repo"
)

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index <project>",
		Short: "Extract, organize and diff every selected tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return err
			}
			m := metrics.New(p.Config.Name)
			start := time.Now()
			res, err := pipeline.Run(cmd.Context(), p, pipeline.Options{
				Workers:  a.workers(),
				Logger:   a.logger(cmd),
				Progress: a.progress(cmd),
				Metrics:  m,
			})
			if path := a.v.GetString("metrics-file"); path != "" {
				if werr := m.WriteFile(path); werr != nil && err == nil {
					err = werr
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printf(out, "Indexed %d tags (%d skipped) in %s\n", len(res.Tags), len(res.Skipped), time.Since(start).Round(time.Millisecond))
			printf(out, "  objects: %d (%d new)\n", res.Objects, res.Created)
			printf(out, "  symbols: %d new\n", res.Symbols)
			printf(out, "  diffs:   %d new, %d existing\n", res.Diffs, res.Existing)
			return nil
		},
	}
}

func newResplitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resplit <project>",
		Short: "Rebuild missing per-object tag files from the combined tag table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return err
			}
			org := organize.New(p.Layout, nil, organize.Options{
				Workers:  a.workers(),
				Logger:   a.logger(cmd),
				Progress: a.progress(cmd),
			})
			if err := org.SplitCombined(cmd.Context()); err != nil {
				return err
			}
			s := org.Stats()
			if s.Files > 0 {
				if _, err := autocomplete.Build(cmd.Context(), p.Layout, a.workers()); err != nil {
					return err
				}
			}
			printf(cmd.OutOrStdout(), "Wrote %d tag files (%d symbols), %d already present\n", s.Files, s.Symbols, s.Skipped)
			return nil
		},
	}
}

func newTagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tags <project>",
		Short: "Print the tags an index run would process, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return err
			}
			src, err := pipeline.OpenSource(cmd.Context(), p.Config, a.logger(cmd))
			if err != nil {
				return err
			}
			tags, collided, err := pipeline.SelectTags(cmd.Context(), src, p.Config)
			if err != nil {
				return err
			}
			for _, tag := range tags {
				printTag(cmd, tag)
			}
			for _, tag := range collided {
				printf(cmd.ErrOrStderr(), "skipping %s: diff file name already taken\n", tag.Name)
			}
			return nil
		},
	}
}

func printTag(cmd *cobra.Command, tag repo.Tag) {
	commit := tag.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	printf(cmd.OutOrStdout(), "%s\t%s\t%s\n", tag.Name, commit, tag.Time.UTC().Format(time.RFC3339))
}
