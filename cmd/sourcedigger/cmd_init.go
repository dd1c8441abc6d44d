package main

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/sourcedigger/pkg/ctags"
	"github.com/odvcencio/sourcedigger/pkg/project"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		cfg     project.Config
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "init <project>",
		Short: "Register a project in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Index.Repo == "" {
				return errors.New("init: --repo is required")
			}
			repoPath, err := filepath.Abs(cfg.Index.Repo)
			if err != nil {
				return err
			}
			cfg.Name = args[0]
			cfg.Index.Repo = repoPath
			cfg.Generator.Timeout = project.Duration{Duration: timeout}

			p, err := project.Create(a.db(), &cfg)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Registered %s at %s\n", p.Config.Name, p.Root)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Index.Repo, "repo", "", "path to the git repository")
	f.StringVar(&cfg.Origin, "origin", "", "upstream URL shown to users")
	f.StringVar(&cfg.SourceViewer, "source-viewer", "", "URL template for viewing a file at a tag")
	f.StringVar(&cfg.Index.TagPattern, "tag-pattern", "", "regexp selecting tags; capture group 1 collapses related tags")
	f.StringVar(&cfg.Index.FilePattern, "file-pattern", "", "regexp selecting file paths")
	f.StringArrayVar(&cfg.Index.FileGlobs, "file-glob", nil, "glob selecting file paths (repeatable)")
	f.StringVar(&cfg.Index.Sort, "sort", "", "tag order: time or natural")
	f.IntVar(&cfg.Index.Workers, "index-workers", 0, "worker goroutines for this project (0 uses all CPUs)")
	f.StringVar(&cfg.Generator.Kind, "generator", ctags.KindExec, "symbol generator: ctags or treesitter")
	f.StringVar(&cfg.Generator.Command, "ctags", "", "ctags binary")
	f.StringArrayVar(&cfg.Generator.Args, "ctags-arg", nil, "extra ctags argument (repeatable)")
	f.DurationVar(&timeout, "timeout", project.DefaultGeneratorTimeout, "generator deadline (0 disables)")
	return cmd
}

func newProjectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := project.List(a.db())
			if err != nil {
				return err
			}
			for _, name := range names {
				p, err := a.open(name)
				if err != nil {
					return err
				}
				meta, err := p.Meta()
				if err != nil {
					return err
				}
				if meta.LatestVer == "" {
					printf(cmd.OutOrStdout(), "%s\tnot indexed\n", name)
					continue
				}
				printf(cmd.OutOrStdout(), "%s\t%s..%s\t%d tags\n", name, meta.InitialVer, meta.LatestVer, meta.Tags)
			}
			return nil
		},
	}
}
