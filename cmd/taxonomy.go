package cmd

import (
	"fmt"
	"io"

	"sjsage522/listingworker/internal/taxonomy"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func categoriesCommand() *cobra.Command {
	return optionsCommand("categories", "List catalog categories usable with -c", taxonomy.KindCategory)
}

func platformsCommand() *cobra.Command {
	return optionsCommand("platforms", "List video game platforms usable with -p", taxonomy.KindPlatform)
}

func optionsCommand(use, short string, kind taxonomy.Kind) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			renderOptions(cmd.OutOrStdout(), kind, search)
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only entries whose name contains this text")
	return cmd
}

func renderOptions(w io.Writer, kind taxonomy.Kind, search string) {
	options := taxonomy.Search(kind, search)
	if len(options) == 0 {
		fmt.Fprintf(w, "No %s match %q\n", kind.Table(), search)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Name", "Group"})
	for _, o := range options {
		t.AppendRow(table.Row{o.ID, o.Label, o.Group})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d entries", len(options)), ""})
	t.Render()
}
