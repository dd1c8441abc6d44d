package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/odvcencio/sourcedigger/pkg/logging"
	"github.com/odvcencio/sourcedigger/pkg/progress"
	"github.com/odvcencio/sourcedigger/pkg/project"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app carries the global settings shared by every subcommand. Flags win
// over SOURCEDIGGER_* environment variables, which win over defaults.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SOURCEDIGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	a := &app{v: v}

	root := &cobra.Command{
		Use:           "sourcedigger",
		Short:         "Index the symbol history of a repository's tagged versions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("db", "sourcedigger-db", "database directory holding one subdirectory per project")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("log-format", "text", "text or json")
	pf.Int("workers", 0, "worker goroutines (0 uses the project setting)")
	pf.Bool("quiet", false, "disable progress bars")
	pf.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
	if err := v.BindPFlags(pf); err != nil {
		panic(err)
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newProjectsCmd(a))
	root.AddCommand(newTagsCmd(a))
	root.AddCommand(newIndexCmd(a))
	root.AddCommand(newResplitCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sourcedigger", version)
		},
	}
}

func (a *app) db() string { return a.v.GetString("db") }

func (a *app) workers() int { return a.v.GetInt("workers") }

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	level := logging.LevelFromString(a.v.GetString("log-level"))
	w := cmd.ErrOrStderr()
	if strings.EqualFold(a.v.GetString("log-format"), "json") {
		return logging.NewJSON(w, level)
	}
	return logging.New(w, level)
}

func (a *app) progress(cmd *cobra.Command) progress.Reporter {
	if a.v.GetBool("quiet") {
		return progress.Nop()
	}
	return progress.NewBar(cmd.ErrOrStderr())
}

func (a *app) open(name string) (*project.Project, error) {
	return project.Open(a.db(), name)
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
