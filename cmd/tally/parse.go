package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/tally/internal/parse"
)

func newParseCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:     "parse <text>",
		Short:   "Print how a message is parsed",
		Example: `  tally parse "lunch 600 @all"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parse.New()
			if err != nil {
				return err
			}
			res := p.Parse(strings.Join(args, " "), strings.ToUpper(currency))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "THB", "currency assumed when the text names none")
	return cmd
}
