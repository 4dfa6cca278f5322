package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emberboard/emberboard/internal/output"
	"github.com/emberboard/emberboard/internal/synonym"
)

func newSynonymsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synonyms",
		Short: "Manage per-locale synonym rules",
		Long: `Manage the synonym rules behind search expansion.

A rule is one line of the form "from => to". Either side may list
comma-separated alternatives; every from-term expands to the to-terms
at query time. Expansion is one-directional: to make two terms find
each other, list both directions.

Mutations mark the locale's index stale and synchronize it inline
unless --no-sync is given (then run 'emberboard sync' later).`,
		Example: `  # Show the current rules
  emberboard synonyms list

  # Add one rule
  emberboard synonyms add "frob => frob, glork"

  # Replace a locale's whole rule set from a file
  emberboard synonyms import de.txt --locale de

  # Dump rules in the same editable format
  emberboard synonyms export --locale de`,
	}

	cmd.AddCommand(newSynonymsListCmd())
	cmd.AddCommand(newSynonymsAddCmd())
	cmd.AddCommand(newSynonymsRemoveCmd())
	cmd.AddCommand(newSynonymsImportCmd())
	cmd.AddCommand(newSynonymsExportCmd())
	cmd.AddCommand(newSynonymsStatusCmd())

	return cmd
}

func newSynonymsStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync state per locale",
		Long: `Show each locale's rule revision next to the revision its index
was last built from. A locale is stale when the two differ.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			locales, err := a.store.Locales(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if len(locales) == 0 {
				out.Statusf("·", "no synonym rules in any locale")
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-12s %9s %9s  %s\n", "LOCALE", "REVISION", "SYNCED", "STATE")
			for _, loc := range locales {
				state, err := a.store.SyncState(cmd.Context(), loc)
				if err != nil {
					return err
				}
				label := "current"
				if state.Stale() {
					label = "stale"
				}
				fmt.Fprintf(w, "%-12s %9d %9d  %s\n", loc, state.Revision, state.SyncedRevision, label)
			}
			return nil
		},
	}
	return cmd
}

// syncAfterMutation rebuilds the locale's index inline. CLI mutations
// synchronize eagerly because the process is about to exit; a queued
// task would die with it.
func syncAfterMutation(ctx context.Context, a *app, out *output.Writer, locale string, noSync bool) error {
	if noSync {
		out.Warning("index not synchronized; run 'emberboard sync " + locale + "'")
		return nil
	}
	if err := a.sync.Synchronize(ctx, locale); err != nil {
		return err
	}
	out.Successf("index for %s synchronized", locale)
	return nil
}

func newSynonymsListCmd() *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a locale's synonym rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			rules, err := a.store.ListRules(cmd.Context(), loc)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if len(rules) == 0 {
				out.Statusf("·", "no synonym rules for %s", loc)
				return nil
			}
			for _, r := range rules {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s\n", r.ID, r.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale (default from config)")
	return cmd
}

func newSynonymsAddCmd() *cobra.Command {
	var locale string
	var noSync bool

	cmd := &cobra.Command{
		Use:   "add \"<from> => <to>\"",
		Short: "Add one synonym rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			pair, err := synonym.ParsePair(args[0])
			if err != nil {
				return formatParseError(err)
			}

			rule, err := a.store.AddRule(cmd.Context(), loc, pair.From, pair.To)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("rule %d: %s", rule.ID, rule.String())
			return syncAfterMutation(cmd.Context(), a, out, loc, noSync)
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale (default from config)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip the inline index rebuild")
	return cmd
}

func newSynonymsRemoveCmd() *cobra.Command {
	var locale string
	var noSync bool

	cmd := &cobra.Command{
		Use:     "remove <rule-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a synonym rule by id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("rule id must be a number, got %q", args[0])
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			if err := a.store.DeleteRule(cmd.Context(), id); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("rule %d removed", id)
			return syncAfterMutation(cmd.Context(), a, out, loc, noSync)
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale of the removed rule (default from config)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip the inline index rebuild")
	return cmd
}

func newSynonymsImportCmd() *cobra.Command {
	var locale string
	var noSync bool

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Replace a locale's rules from a file or stdin",
		Long: `Replace a locale's whole rule set with the rules in a file
("-" or no argument reads stdin). The text is validated first: if any
line is malformed, every bad line is reported and nothing changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readImportText(cmd, args)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			pairs, err := synonym.Parse(text)
			if err != nil {
				return formatParseError(err)
			}

			if err := a.store.ReplaceRules(cmd.Context(), loc, pairs); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("%d rules imported for %s", len(pairs), loc)
			return syncAfterMutation(cmd.Context(), a, out, loc, noSync)
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale (default from config)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip the inline index rebuild")
	return cmd
}

func readImportText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func newSynonymsExportCmd() *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print a locale's rules in importable form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			loc, err := a.resolveLocale(locale)
			if err != nil {
				return err
			}

			text, err := a.store.ExportRules(cmd.Context(), loc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.Flags().StringVarP(&locale, "locale", "l", "", "Locale (default from config)")
	return cmd
}

// formatParseError renders every bad line of a ParseError, one per
// line, so the whole file can be fixed in a single pass.
func formatParseError(err error) error {
	var perr *synonym.ParseError
	if !errors.As(err, &perr) {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", perr.Error())
	for _, line := range perr.Lines {
		fmt.Fprintf(&b, "  %s\n", line.String())
	}
	return errors.New(strings.TrimRight(b.String(), "\n"))
}
