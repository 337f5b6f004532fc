package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFullTextCmd(g *globalOptions) *cobra.Command {
	var index, column string

	cmd := &cobra.Command{
		Use:   "full-text <id>",
		Short: "Print the full text of a document",
		Long: `Print the untruncated text of one document, read from its parquet files.

Without --index every index is tried in order until one holds the document.`,
		Example: `  mosaic full-text doc-42
  mosaic full-text https://example.org --column url --index web`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, closeApp, err := g.openApp(ctx, cmd, "warn")
			if err != nil {
				return err
			}
			defer closeApp()

			text, err := a.FullText(ctx, args[0], column, index)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.Flags().StringVarP(&index, "index", "i", "", "Read only this index")
	cmd.Flags().StringVar(&column, "column", "", "Column matched against the id (default: store.id_column)")

	return cmd
}
