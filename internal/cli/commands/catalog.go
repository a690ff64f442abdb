package commands

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/unitdesign/internal/catalog"
	"github.com/leapstack-labs/unitdesign/internal/cli/output"
)

// NewCatalogCommand creates the catalog command and its subcommands.
func NewCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the unit process catalog",
		Long: `Inspect the unit process types known to unitdesign.

The catalog holds the built-in unit processes plus every definition found
in the catalog directory.`,
	}
	cmd.AddCommand(newCatalogListCommand())
	cmd.AddCommand(newCatalogShowCommand())
	return cmd
}

func newCatalogListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List unit process types",
		Example: `  # List every type
  unitdesign catalog list

  # As JSON
  unitdesign catalog list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalogList(cmd)
		},
	}
}

func runCatalogList(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	entries := cmdCtx.Engine.Catalog().Entries()
	summaries := make([]catalog.Summary, len(entries))
	for i, e := range entries {
		summaries[i] = e.Summarize()
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(summaries)
	case output.ModeYAML:
		return r.YAML(summaries)
	}

	r.Header("Unit processes")
	rows := make([][]string, len(summaries))
	for i, s := range summaries {
		rows[i] = []string{s.Type, strings.Join(s.Inputs, ", "), strconv.Itoa(s.Rules), s.Origin, s.Description}
	}
	r.Table([]string{"Type", "Inputs", "Rules", "Origin", "Description"}, rows)
	return nil
}

func newCatalogShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <type>",
		Short:             "Show the quantities and rules of a unit process type",
		Example:           `  unitdesign catalog show PipeHeadLoss`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTypeNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogShow(cmd, args[0])
		},
	}
}

func runCatalogShow(cmd *cobra.Command, typeName string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	entry, err := cmdCtx.Engine.Catalog().Lookup(typeName)
	if err != nil {
		return err
	}
	d := entry.Describe()

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(d)
	case output.ModeYAML:
		return r.YAML(d)
	}

	r.Header(d.Type)
	if d.Description != "" {
		r.Println(d.Description)
		r.Println()
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatKeyValue("Origin", d.Origin))
		r.Println()
	} else {
		r.Println(r.Muted("origin " + d.Origin))
	}

	rows := make([][]string, len(d.Quantities))
	for i, q := range d.Quantities {
		def := "-"
		if q.Default != nil {
			def = output.FormatNumber(*q.Default)
		}
		derived := q.DerivedBy
		if derived == "" {
			derived = "input"
		}
		rows[i] = []string{q.Name, q.Unit, limitsText(q.Lower, q.Upper), def, derived, q.Description}
	}
	r.Table([]string{"Quantity", "Unit", "Bounds", "Default", "Derived by", "Description"}, rows)
	r.Println()

	renderGroups(r, d.Groups)
	return nil
}

func renderGroups(r *output.Renderer, groups []catalog.GroupInfo) {
	var rows [][]string
	for _, g := range groups {
		cyclic := ""
		if g.Cyclic {
			cyclic = "cyclic"
		}
		for _, rule := range g.Rules {
			rows = append(rows, []string{
				strconv.Itoa(g.Index),
				rule.Name,
				rule.Output,
				strings.Join(rule.Inputs, ", "),
				cyclic,
			})
		}
	}
	r.Table([]string{"Group", "Rule", "Output", "Inputs", ""}, rows)
}

func limitsText(lower, upper *float64) string {
	switch {
	case lower == nil && upper == nil:
		return "-"
	case upper == nil:
		return "≥ " + output.FormatNumber(*lower)
	case lower == nil:
		return "≤ " + output.FormatNumber(*upper)
	}
	return output.FormatNumber(*lower) + " to " + output.FormatNumber(*upper)
}
