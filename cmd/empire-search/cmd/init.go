package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jayusctrojan/empire-search/internal/config"
	"github.com/jayusctrojan/empire-search/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter project config",
		Long: `Write a .empire-search.yaml with the default settings into the
current directory. Edit it to tune retrieval, caching, and expansion;
settings you remove fall back to the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing project config")
	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	if existing := config.ProjectConfigPath(dir); existing != "" && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", existing)
	}

	path := filepath.Join(dir, ".empire-search.yaml")
	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}

	out.Successf("wrote %s", path)
	return nil
}
