package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"negfilter/internal/ingest"
	"negfilter/internal/model"
	"negfilter/internal/store"
)

func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage stored negative keyword lists",
	}
	cmd.AddCommand(newRulesImportCmd(), newRulesListCmd(), newRulesDeleteCmd(), newRulesListsCmd())
	return cmd
}

func newRulesImportCmd() *cobra.Command {
	var list string
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import negatives from a CSV, TSV or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nt, err := ingest.LoadNegatives(args[0], cfg.MaxFileBytes)
			if err != nil {
				return err
			}
			st, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()

			n := 0
			if replace {
				n, err = st.ReplaceList(cmd.Context(), list, nt.Rules)
			} else {
				for _, r := range nt.Rules {
					if r.Keyword == "" {
						continue
					}
					if _, err = st.UpsertRule(cmd.Context(), model.NegativeRule{
						List: list, Keyword: r.Keyword, MatchType: r.MatchType, Enabled: true,
					}); err != nil {
						break
					}
					n++
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d rules into %q", n, listOrDefault(list))
			if nt.Coerced > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " (%d match types defaulted to BROAD)", nt.Coerced)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&list, "list", store.DefaultList, "Rule list name")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the list instead of merging")
	return cmd
}

func newRulesListCmd() *cobra.Command {
	var list string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the rules of a list in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()
			rules, err := st.ListRules(cmd.Context(), list)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLIST\tKEYWORD\tMATCH TYPE\tENABLED\tAPPLIED")
			for _, r := range rules {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\t%s\n", r.ID, r.List, r.Keyword, r.MatchType, r.Enabled, humanize.Comma(r.AppliedCount))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&list, "list", "", "Only this list")
	return cmd
}

func newRulesListsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Print rule lists with counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()
			lists, err := st.Lists(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LIST\tRULES\tENABLED\tAPPLIED")
			for _, l := range lists {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", l.Name, l.Rules, l.Enabled, humanize.Comma(l.Applied))
			}
			return tw.Flush()
		},
	}
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}
			st, closeFn, err := openStore()
			if err != nil {
				return err
			}
			defer closeFn()
			if err := st.DeleteRule(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %d\n", id)
			return nil
		},
	}
}

func listOrDefault(list string) string {
	if list == "" {
		return store.DefaultList
	}
	return list
}
