// Package modelscmder provides the models command, which lists the models
// each provider offers.
package modelscmder

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmerge/pkg/apiclient"
	"github.com/papercomputeco/chatmerge/pkg/cliui"
)

const modelsLongDesc string = `List the models each provider offers.

The first model listed for a provider is the one new chats use when no
model is given.

Examples:
  chatmerge models
  chatmerge models --provider ollama`

const modelsShortDesc string = "List provider models"

type modelsCommander struct {
	apiclient.Command

	provider string
}

func NewModelsCmd() *cobra.Command {
	cmder := &modelsCommander{}

	cmd := &cobra.Command{
		Use:     "models",
		Short:   modelsShortDesc,
		Long:    modelsLongDesc,
		Args:    cobra.NoArgs,
		PreRunE: cmder.Connect,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := cmder.Client.Models(cmd.Context())
			if err != nil {
				return err
			}

			if cmder.provider != "" {
				list, ok := models[cmder.provider]
				if !ok {
					return fmt.Errorf("unknown provider: %s", cmder.provider)
				}
				models = map[string][]string{cmder.provider: list}
			}

			renderModels(cmd.OutOrStdout(), models)
			return nil
		},
	}

	cmder.AddFlags(cmd)
	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Only list models of this provider")

	return cmd
}

func renderModels(w io.Writer, models map[string][]string) {
	providers := make([]string, 0, len(models))
	for p := range models {
		providers = append(providers, p)
	}
	slices.Sort(providers)

	fmt.Fprintln(w)
	for _, p := range providers {
		fmt.Fprintf(w, "  %s\n", cliui.NameStyle.Render(p))
		for i, m := range models[p] {
			line := "    " + cliui.ValueStyle.Render(m)
			if i == 0 {
				line += " " + cliui.DimStyle.Render("(default)")
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
}
