package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-MMP/internal/domain/transform"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/chem/graphkit"
)

// NewTransformCmd builds "mmp transform", the reaction-pattern utilities.
func NewTransformCmd() *cobra.Command {
	var acyclic bool

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Rewrite and inspect transform patterns",
	}
	cmd.PersistentFlags().BoolVar(&acyclic, "acyclic-single", false, "constrain attachment bonds to acyclic single bonds")

	rxnCmd := &cobra.Command{
		Use:   "rxn LEFT [RIGHT]",
		Short: "Build a reaction pattern from one transform or two fragments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				out string
				err error
			)
			if len(args) == 2 {
				out, err = transform.TransformPattern(args[0], args[1], acyclic)
			} else {
				out, err = transform.RewriteToReaction(args[0], acyclic)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	reverseCmd := &cobra.Command{
		Use:   "reverse REACTION",
		Short: "Swap the sides of a reaction pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := transform.Reverse(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	chiralityCmd := &cobra.Command{
		Use:   "chirality REACTION",
		Short: "Enumerate the chirality variants of a reaction pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variants, err := transform.EnumerateChirality(args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, len(variants))
			for i, v := range variants {
				rows[i] = []string{fmt.Sprint(i + 1), v}
			}
			fmt.Fprint(cmd.OutOrStdout(), FormatTable([]string{"#", "reaction"}, rows))
			return nil
		},
	}

	leafCmd := &cobra.Command{
		Use:   "leafgen REACTION",
		Short: "Rewrite a single-cut reaction to generate leaves from hydrogens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := transform.LeafGenerationPattern(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	exactCmd := &cobra.Command{
		Use:   "exact REACTION",
		Short: "Lock every reactant atom to its exact substitution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := transform.ExactMatchPattern[*graphkit.Mol](graphkit.New(), args[0], acyclic)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.AddCommand(rxnCmd, reverseCmd, chiralityCmd, leafCmd, exactCmd)
	return cmd
}
