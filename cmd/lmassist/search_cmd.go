package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/langmartai/lmassist/internal/cli"
	"github.com/langmartai/lmassist/internal/retrieval"
)

func searchCmd() *cobra.Command {
	var limit int
	var verbose bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(strings.Join(args, " "), limit, verbose)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show a snippet for each result")
	return cmd
}

func runSearch(query string, limit int, verbose bool) error {
	app, err := newAppContext(true)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := retrieval.SearchKnowledge(app.DB, app.Store, app.Provider, query, limit)
	if err != nil {
		return err
	}

	cli.Header(fmt.Sprintf("Search: %q", query))
	blocks := make([]cli.SuggestedBlock, len(results))
	for i, r := range results {
		blocks[i] = cli.SuggestedBlock{
			Kind:    "knowledge",
			Title:   r.KnowledgeTitle,
			Ref:     r.Row.PartID,
			Score:   r.Row.Score,
			Snippet: r.Row.Text,
		}
	}
	fmt.Println(cli.RenderSuggestions(blocks, verbose))
	cli.Footer(fmt.Sprintf("%d result(s)", len(results)))
	return nil
}
