package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/xployt/internal/catalog"
	"github.com/papapumpkin/xployt/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the analysis pipelines, or validate a catalog file",
	Long: `Without --file, lists the catalog runs use: catalog_path from config, or
the built-in catalog. With --file, parses and validates that TOML file and
lists its contents.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().String("file", "", "catalog TOML file to validate")
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	path := file
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.CatalogPath
	}
	return showCatalog(ui.NewWriter(cmd.OutOrStdout()), path, file != "")
}

// showCatalog loads the catalog at path (the built-in one when empty) and
// lists it, first confirming it is valid when validate is set.
func showCatalog(p *ui.Printer, path string, validate bool) error {
	c, err := catalog.Load(path)
	if err != nil {
		return err
	}
	if validate {
		p.CatalogValid(path, c)
	}
	p.Catalog(c)
	return nil
}
