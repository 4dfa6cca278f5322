package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberboard/emberboard/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	locale string
	limit  int
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a locale's forum threads",
		Long: `Search forum threads with synonym expansion applied at query time:
a query term that appears on the from-side of one of the locale's
rules also matches threads containing the to-terms.`,
		Example: `  emberboard search "frob"
  emberboard search "login broken" --locale de --limit 5
  emberboard search crash --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.locale, "locale", "l", "", "Locale (default from config)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	locale, err := a.resolveLocale(opts.locale)
	if err != nil {
		return err
	}
	limit := opts.limit
	if limit <= 0 {
		limit = a.cfg.Search.MaxResults
	}

	result, err := a.eng.Search(cmd.Context(), locale, query, limit)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := output.New(cmd.OutOrStdout())
	if result.Total == 0 {
		out.Statusf("·", "no matches for %q in %s", query, locale)
		return nil
	}

	out.Statusf("🔍", "%d matches in %s (%s)", result.Total, locale, result.Took.Round(time.Millisecond))
	for i, hit := range result.Hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d. %-10s %.3f  %s\n", i+1, hit.ID, hit.Score, hit.Title)
	}
	return nil
}
