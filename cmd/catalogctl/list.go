package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ayush/research-catalog/backend/internal/catalog"
	"github.com/ayush/research-catalog/backend/internal/models"
)

var (
	listField       string
	listInstitution string
	listYAML        bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		items := selectArtifacts(cat, listField, listInstitution)
		if listYAML {
			return writeManifest(cmd.OutOrStdout(), items)
		}
		return writeTable(cmd.OutOrStdout(), items)
	},
}

func init() {
	listCmd.Flags().StringVar(&listField, "field", "", "Only artifacts in this research field")
	listCmd.Flags().StringVar(&listInstitution, "institution", "", "Only artifacts from this institution")
	listCmd.Flags().BoolVar(&listYAML, "yaml", false, "Print an importable YAML manifest")
	rootCmd.AddCommand(listCmd)
}

func selectArtifacts(cat *catalog.Store, field, institution string) []models.ResearchArtifact {
	switch {
	case field != "":
		return cat.ListByField(field)
	case institution != "":
		return cat.ListByInstitution(institution)
	default:
		return cat.List()
	}
}

func writeTable(w io.Writer, items []models.ResearchArtifact) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tACCESS\tPUBLISHED\tTITLE")
	for _, a := range items {
		fmt.Fprintf(tw, "%s\tv%d\t%s\t%s\t%s\n",
			a.ID, a.Version, a.AccessLevel, a.PublishDate.Format("2006-01-02"), a.Title)
	}
	return tw.Flush()
}

func writeManifest(w io.Writer, items []models.ResearchArtifact) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(manifest{Artifacts: items}); err != nil {
		return err
	}
	return enc.Close()
}
