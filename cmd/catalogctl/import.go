package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// manifest is the on-disk shape of an import file.
type manifest struct {
	Artifacts []models.ResearchArtifact `yaml:"artifacts"`
}

var (
	importFile   string
	skipExisting bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import artifacts from a YAML manifest",
	Example: `  catalogctl import --file seed.yaml
  catalogctl import --file seed.yaml --skip-existing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(importFile)
		if err != nil {
			return err
		}
		defer f.Close()

		items, err := readManifest(f)
		if err != nil {
			return fmt.Errorf("%s: %w", importFile, err)
		}

		ctx := cmd.Context()
		cat, closeFn, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := importArtifacts(ctx, cat, items, skipExisting)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.Imported, res.Skipped)
		return err
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "YAML manifest to import")
	importCmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Skip artifacts whose id already exists")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

// readManifest decodes a manifest, rejecting unknown keys so typos in
// field names surface instead of silently dropping data.
func readManifest(r io.Reader) ([]models.ResearchArtifact, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, err
	}
	return m.Artifacts, nil
}

type importResult struct {
	Imported int
	Skipped  int
}

type putter interface {
	Put(ctx context.Context, a models.ResearchArtifact) (string, error)
	PublishVersion(ctx context.Context, previousID string, a models.ResearchArtifact) (string, error)
}

// importArtifacts stores items in order and stops at the first failure.
// Items naming a previous version are published against it, so a version
// must come after its predecessor in the manifest.
func importArtifacts(ctx context.Context, cat putter, items []models.ResearchArtifact, skipExisting bool) (importResult, error) {
	var res importResult
	for i, a := range items {
		var err error
		if prev := a.PreviousVersionID; prev != "" {
			a.PreviousVersionID, a.Version = "", 0
			_, err = cat.PublishVersion(ctx, prev, a)
		} else {
			_, err = cat.Put(ctx, a)
		}
		if err != nil {
			if skipExisting && errors.Is(err, apperr.ErrConflict) {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("artifact %d (%q): %w", i+1, a.Title, err)
		}
		res.Imported++
	}
	return res, nil
}
