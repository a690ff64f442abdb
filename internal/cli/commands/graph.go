package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/unitdesign/internal/catalog"
	"github.com/leapstack-labs/unitdesign/internal/cli/output"
	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// GraphOutput is the JSON form of the graph command.
type GraphOutput struct {
	Type   string              `json:"type" yaml:"type"`
	Free   []string            `json:"free" yaml:"free"`
	Groups []catalog.GroupInfo `json:"groups" yaml:"groups"`
}

// ImpactOutput is the JSON form of graph --affected.
type ImpactOutput struct {
	Type     string   `json:"type" yaml:"type"`
	Quantity string   `json:"quantity" yaml:"quantity"`
	Upstream []string `json:"upstream" yaml:"upstream"`
	Affected []string `json:"affected" yaml:"affected"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	var affected string

	cmd := &cobra.Command{
		Use:   "graph <type>",
		Short: "Show the resolution order of a unit process",
		Long: `Display the rule graph of a unit process type.

Rules are grouped in resolution order. A cyclic group holds mutually
dependent rules that are resolved together by fixed-point iteration.

With --affected, show which quantities depend on one quantity instead, and
which quantities it depends on.`,
		Example: `  # Show the resolution groups
  unitdesign graph PipeHeadLoss

  # What changes when the diameter changes
  unitdesign graph PipeHeadLoss --affected diameter`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTypeNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if affected != "" {
				return runImpact(cmd, args[0], affected)
			}
			return runGraph(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&affected, "affected", "", "Show the quantities that depend on this quantity")
	return cmd
}

func runGraph(cmd *cobra.Command, typeName string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	entry, err := cmdCtx.Engine.Catalog().Lookup(typeName)
	if err != nil {
		return err
	}
	out := GraphOutput{
		Type:   entry.TypeName,
		Free:   entry.Graph.FreeQuantities(),
		Groups: catalog.Groups(entry.Graph),
	}
	if out.Free == nil {
		out.Free = []string{}
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeYAML:
		return r.YAML(out)
	case output.ModeMarkdown:
		return graphMarkdown(r, out)
	default:
		return graphText(r, out)
	}
}

func graphText(r *output.Renderer, out GraphOutput) error {
	styles := r.Styles()

	r.Header(out.Type + " resolution order")
	r.Printf("%s %s\n\n", styles.Muted.Render("inputs:"), strings.Join(out.Free, ", "))

	for _, g := range out.Groups {
		label := fmt.Sprintf("Group %d", g.Index)
		if g.Cyclic {
			label += " (cyclic)"
		}
		r.Println(styles.Bold.Render(label))
		for _, rule := range g.Rules {
			r.Printf("  %s %s %s\n",
				styles.Value.Render(rule.Output),
				styles.Muted.Render("<-"),
				strings.Join(rule.Inputs, ", "))
		}
	}
	return nil
}

func graphMarkdown(r *output.Renderer, out GraphOutput) error {
	r.Println(output.FormatHeader(1, out.Type+" resolution order"))
	r.Println()
	r.Println(output.FormatKeyValue("Inputs", strings.Join(out.Free, ", ")))
	r.Println()

	for _, g := range out.Groups {
		title := fmt.Sprintf("Group %d", g.Index)
		if g.Cyclic {
			title += " (cyclic)"
		}
		r.Println(output.FormatHeader(2, title))
		for _, rule := range g.Rules {
			r.Printf("- %s <- %s\n", rule.Output, strings.Join(rule.Inputs, ", "))
		}
		r.Println()
	}
	return nil
}

func runImpact(cmd *cobra.Command, typeName, quantity string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	entry, err := cmdCtx.Engine.Catalog().Lookup(typeName)
	if err != nil {
		return err
	}
	if _, ok := entry.Graph.Declaration(quantity); !ok {
		return &core.UnknownQuantityError{Name: quantity, Context: "unit process " + typeName}
	}

	out := ImpactOutput{
		Type:     entry.TypeName,
		Quantity: quantity,
		Upstream: nonNil(entry.Graph.Upstream(quantity)),
		Affected: nonNil(entry.Graph.Affected(quantity)),
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeYAML:
		return r.YAML(out)
	}

	r.Header(fmt.Sprintf("%s: %s", out.Type, out.Quantity))
	rows := [][]string{
		{"depends on", listText(out.Upstream)},
		{"affects", listText(out.Affected)},
	}
	r.Table([]string{"Relation", "Quantities"}, rows)
	return nil
}

func listText(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
