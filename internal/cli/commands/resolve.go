package commands

import (
	"maps"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/unitdesign/internal/cli/output"
	"github.com/leapstack-labs/unitdesign/internal/engine"
	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/record"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// ResolveOptions holds options for the resolve command.
type ResolveOptions struct {
	InputsFile string
	Guesses    []string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	opts := &ResolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve <type> [name=value ...]",
		Short: "Resolve the design of a unit process",
		Long: `Resolve a unit process design from the parameters you know.

Each argument assigns one free quantity. Values may carry a unit
("flow=50 L/s", "diameter=200mm"); a bare number is read in the quantity's
declared unit. Quantities you leave out take their catalog defaults.

Output adapts to environment:
  - Terminal: Styled tables
  - Piped/Scripted: Markdown format
  - --output json|yaml: the design record document`,
		Example: `  # Size a pipe
  unitdesign resolve StraightPipe flow=50L/s diameter=200mm

  # Read inputs from a file and override one of them
  unitdesign resolve PipeHeadLoss --inputs pipe.yaml length=120m

  # Start the friction factor iteration elsewhere
  unitdesign resolve PipeHeadLoss --inputs pipe.yaml --guess friction=0.03

  # Write the design record as JSON
  unitdesign resolve StraightPipe flow=0.05 diameter=0.2 -o json`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeTypeNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, args[0], args[1:])
		},
	}

	cmd.Flags().StringVarP(&opts.InputsFile, "inputs", "i", "", "YAML file of name: value inputs")
	cmd.Flags().StringArrayVar(&opts.Guesses, "guess", nil, "Initial estimate for a cyclic quantity (name=number, repeatable)")
	addResolverFlags(cmd)

	return cmd
}

// addResolverFlags registers flags that override the resolver section of
// the config.
func addResolverFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("tolerance", 0, "Convergence tolerance for cyclic groups")
	cmd.Flags().Int("max-iterations", 0, "Sweep limit for one cyclic group")
	cmd.Flags().String("guess-strategy", "", "Initial guess strategy (user_value|bound_midpoint|fixed_constant)")
	cmd.Flags().String("criterion", "", "Convergence criterion (relative|absolute)")
	cmd.Flags().Float64("relaxation", 0, "Under-relaxation factor in (0, 1]")
	cmd.Flags().Bool("parallel", false, "Evaluate the rules of one sweep concurrently")

	_ = cmd.RegisterFlagCompletionFunc("guess-strategy", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"user_value", "bound_midpoint", "fixed_constant"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("criterion", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"relative", "absolute"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runResolve(cmd *cobra.Command, opts *ResolveOptions, typeName string, args []string) error {
	inputs := make(map[string]units.Measure)
	if opts.InputsFile != "" {
		fromFile, err := engine.ReadInputsFile(opts.InputsFile)
		if err != nil {
			return err
		}
		maps.Copy(inputs, fromFile)
	}
	fromArgs, err := engine.ParseAssignments(args)
	if err != nil {
		return err
	}
	maps.Copy(inputs, fromArgs)

	guesses, err := engine.ParseGuesses(opts.Guesses)
	if err != nil {
		return err
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	rec, err := cmdCtx.Engine.ResolveRequest(cmd.Context(), engine.Request{
		Type:    typeName,
		Inputs:  inputs,
		Guesses: guesses,
	})
	if err != nil {
		return err
	}

	return renderRecord(cmdCtx.Renderer, rec, cmdCtx.Cfg.Verbose)
}

func renderRecord(r *output.Renderer, rec *record.Record, verbose bool) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rec)
	case output.ModeYAML:
		data, err := rec.EncodeYAML()
		if err != nil {
			return err
		}
		_, err = r.Writer().Write(data)
		return err
	}

	markdown := r.EffectiveMode() == output.ModeMarkdown
	r.Header(rec.UnitProcess() + " design")

	rows := make([][]string, 0, rec.Len())
	for _, q := range rec.Quantities() {
		rows = append(rows, []string{
			q.Name,
			output.FormatNumber(q.Value),
			q.Unit.Symbol(),
			sourceText(q.Source),
			boundsText(q.Bounds),
			statusText(q),
		})
	}
	r.Table([]string{"Quantity", "Value", "Unit", "Source", "Bounds", "Status"}, rows)
	r.Println()

	groups := rec.Convergence()
	if verbose || hasCycle(groups) {
		if markdown {
			r.Println(output.FormatHeader(3, "Convergence"))
			r.Println()
		} else {
			r.Println(r.Styles().Bold.Render("Convergence"))
		}
		grows := make([][]string, 0, len(groups))
		for _, g := range groups {
			if !g.Cyclic && !verbose {
				continue
			}
			grows = append(grows, []string{
				strconv.Itoa(g.Index),
				strings.Join(g.Rules, ", "),
				strconv.FormatBool(g.Cyclic),
				strconv.Itoa(g.Iterations),
				strconv.FormatFloat(g.Residual, 'g', 3, 64),
				strconv.FormatBool(g.Converged),
			})
		}
		r.Table([]string{"Group", "Rules", "Cyclic", "Iterations", "Residual", "Converged"}, grows)
		r.Println()
	}

	if markdown {
		r.Println(output.FormatKeyValue("Constraints satisfied", strconv.FormatBool(rec.ConstraintsSatisfied())))
		if verbose {
			r.Println(output.FormatKeyValue("Digest", "`"+rec.Digest()+"`"))
		}
		return nil
	}
	if rec.ConstraintsSatisfied() {
		r.Success("All constraints satisfied")
	} else {
		r.Warning("Some constraints are violated")
	}
	if verbose {
		r.Println(r.Muted("digest " + rec.Digest()))
	}
	return nil
}

func hasCycle(groups []record.GroupReport) bool {
	for _, g := range groups {
		if g.Cyclic {
			return true
		}
	}
	return false
}

func sourceText(s core.Source) string {
	text := output.Title(string(s.Kind))
	if s.Kind == core.SourceDerived {
		text += " (" + s.Rule + ")"
	}
	return text
}

func boundsText(b core.Bounds) string {
	var lower, upper *float64
	if b.Lower.Valid {
		lower = &b.Lower.Value
	}
	if b.Upper.Valid {
		upper = &b.Upper.Value
	}
	return limitsText(lower, upper)
}

func statusText(q core.Quantity) string {
	switch {
	case q.Bounds.IsZero():
		return "-"
	case q.WithinBounds():
		return "ok"
	}
	return "violated"
}

// completeTypeNames completes unit process type names from the catalog.
func completeTypeNames(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return cmdCtx.Engine.Catalog().Names(), cobra.ShellCompDirectiveNoFileComp
}
