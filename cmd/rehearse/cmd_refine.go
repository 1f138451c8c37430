package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rehearse/internal/core"
)

var refineCmd = &cobra.Command{
	Use:   "refine <scenario|persona> <draft>",
	Short: "Turn a free-text draft into a structured scenario or persona",
	Long: `Rewrites a trainer's rough idea into a complete scenario or guest persona
and prints it as YAML. The output can be edited and passed back to
start with --scenario-file or --persona-file.

Example:
  rehearse refine persona "retired nurse, patient until ignored" > persona.yaml`,
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{string(core.RefineScenario), string(core.RefinePersona)},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context())
		if err != nil {
			return err
		}

		res, err := rt.flows.Refine.Run(cmd.Context(), core.RefineInput{
			Kind:  core.RefineKind(args[0]),
			Draft: strings.Join(args[1:], " "),
		})
		if err != nil {
			return err
		}
		if res.Report.Degraded() {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠️  The model was unavailable, this is a template seeded with your draft.")
		}

		if res.Scenario != nil {
			return printYAML(res.Scenario)
		}
		return printYAML(res.Persona)
	},
}
