package cmd

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaic/internal/output"
)

func newIndexInfoCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index-info",
		Short: "Show document counts and languages per index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, closeApp, err := g.openApp(ctx, cmd, "warn")
			if err != nil {
				return err
			}
			defer closeApp()

			infos, err := a.IndexInfo(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			out := output.New(cmd.OutOrStdout())
			if len(infos) == 0 {
				out.Warning("No indexes found")
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Name,
					strconv.FormatUint(info.DocumentCount, 10),
					strings.Join(info.Languages, ","),
				})
			}
			out.Table([]string{"INDEX", "DOCUMENTS", "LANGUAGES"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
