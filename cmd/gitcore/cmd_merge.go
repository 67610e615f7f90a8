package main

import (
	"fmt"

	"github.com/nyxforge/gitcore/pkg/merge"
	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var noCommit bool

	cmd := &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge another branch into the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			report, err := r.Merge(args[0], repo.MergeOptions{NoCommit: noCommit})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch report.Status {
			case merge.AlreadyUpToDate:
				fmt.Fprintln(out, "Already up to date.")
			case merge.FastForward:
				fmt.Fprintf(out, "Fast-forward to %s\n", args[0])
			case merge.Success:
				fmt.Fprintf(out, "Merge made by the three-way line merge.\n")
				if !report.MergeCommit.IsZero() {
					fmt.Fprintf(out, "[%s]\n", shortHash(report.MergeCommit))
				}
			case merge.Conflicts:
				fmt.Fprintf(out, "Automatic merge failed; fix %d conflict(s) and commit the result.\n", report.TotalConflicts)
				for _, c := range report.Conflicts {
					fmt.Fprintf(out, "  CONFLICT: %s\n", c.Path)
				}
				return fmt.Errorf("merge: unresolved conflicts")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "stage the merge result without committing")
	return cmd
}
