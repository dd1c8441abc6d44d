package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/sourcedigger/pkg/bundle"
)

func newExportCmd(a *app) *cobra.Command {
	var output string
	var list bool

	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Write the project's query files to a zstd-compressed tar bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.open(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = p.Config.Name + ".tar.zst"
			}
			sum, err := bundle.ExportFile(cmd.Context(), p.Layout, output)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Wrote %s: %d files, %d bytes before compression\n", output, sum.Files, sum.Bytes)
			if !list {
				return nil
			}
			return listBundle(cmd, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "bundle path (default <project>.tar.zst)")
	cmd.Flags().BoolVar(&list, "list", false, "print the bundle members after writing")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle>",
		Short: "Unpack an exported bundle into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := bundle.Extract(f, a.db())
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			printf(cmd.OutOrStdout(), "Imported %d files into %s\n", n, a.db())
			return nil
		},
	}
}

func listBundle(cmd *cobra.Command, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	entries, err := bundle.List(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printf(cmd.OutOrStdout(), "%8d  %s\n", e.Size, e.Name)
	}
	return nil
}
