package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/autoreply/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and import reply rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesImportCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [automation|owner|normal]",
		Short: "List rules in evaluation order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flavors := []rules.Flavor{rules.FlavorAutomation, rules.FlavorOwner, rules.FlavorNormal}
			if len(args) == 1 {
				f, err := rules.ParseFlavor(args[0])
				if err != nil {
					return err
				}
				flavors = []rules.Flavor{f}
			}

			ctx := context.Background()
			_, stores, err := loadConfigAndStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			for _, f := range flavors {
				list, err := stores.Rules.List(ctx, f)
				if err != nil {
					return fmt.Errorf("list %s rules: %w", f, err)
				}
				fmt.Printf("%s (%d)\n", f, len(list))
				printRuleTable(os.Stdout, f, list)
				fmt.Println()
			}
			return nil
		},
	}
}

// Column widths in terminal cells.
const (
	colID       = 5
	colType     = 8
	colName     = 18
	colKeywords = 28
	colReply    = 36
)

func cell(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func printRuleTable(w io.Writer, f rules.Flavor, list []rules.Record) {
	if len(list) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		cell("ID", colID), cell("TYPE", colType), cell("NAME", colName),
		cell("KEYWORDS", colKeywords), cell("REPLY", colReply))
	for _, r := range list {
		fmt.Fprintf(w, "  %s %s %s %s %s\n",
			cell(rules.RuleID(f, r.Number), colID),
			cell(string(r.Type), colType),
			cell(r.Name, colName),
			cell(r.Keywords, colKeywords),
			cell(r.Template, colReply))
	}
}

func rulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Append rules from a JSON array (each entry carries its flavor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var recs []rules.Record
			if err := json.Unmarshal(data, &recs); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			for i := range recs {
				recs[i].Number = 0
				if err := recs[i].Normalize(); err != nil {
					return fmt.Errorf("rule %d (%q): %w", i+1, recs[i].Name, err)
				}
			}

			ctx := context.Background()
			_, stores, err := loadConfigAndStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()

			for i := range recs {
				if err := stores.Rules.Create(ctx, &recs[i]); err != nil {
					return fmt.Errorf("create rule %d: %w", i+1, err)
				}
				fmt.Printf("  created %s %q\n", rules.RuleID(recs[i].Flavor, recs[i].Number), recs[i].Name)
			}
			fmt.Println("Restart the running gateway to load the imported rules.")
			return nil
		},
	}
}
