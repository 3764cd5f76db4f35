package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/masahif/hondana/internal/storage"
)

type manifestReport struct {
	Build     *storage.BuildSummary    `yaml:"build"`
	Redirects map[string]string        `yaml:"redirects,omitempty"`
	Outputs   []storage.OutputRecord   `yaml:"outputs,omitempty"`
	Errors    []storage.ErrorRecord    `yaml:"errors,omitempty"`
	Resources []storage.ResourceRecord `yaml:"resources,omitempty"`
}

func (a *app) newManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest [build-id]",
		Short: "Show a build recorded in the manifest database (default is the last build)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runManifest,
	}
	cmd.Flags().StringP("database", "d", "", "Path to the SQLite manifest (default is database_path from the config)")
	cmd.Flags().Bool("resources", false, "Also list every recorded resource")
	return cmd
}

func (a *app) runManifest(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("database")
	if dbPath == "" {
		dbPath = a.v.GetString("database_path")
	}
	if dbPath == "" {
		return fmt.Errorf("no manifest database given; use --database or database_path")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("failed to open manifest %s: %w", dbPath, err)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open manifest %s: %w", dbPath, err)
	}
	defer func() { _ = store.Close() }()

	var buildID string
	if len(args) > 0 {
		buildID = args[0]
	} else if buildID, err = store.GetMeta("last_build_id"); err != nil {
		return err
	}
	if buildID == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No builds recorded.")
		return nil
	}

	report := manifestReport{}
	if report.Build, err = store.Summary(buildID); err != nil {
		return err
	}
	if report.Redirects, err = store.Redirects(buildID); err != nil {
		return err
	}
	if report.Outputs, err = store.Outputs(buildID); err != nil {
		return err
	}
	if report.Errors, err = store.Errors(buildID); err != nil {
		return err
	}
	if withResources, _ := cmd.Flags().GetBool("resources"); withResources {
		if report.Resources, err = store.Resources(buildID); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest to YAML: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
