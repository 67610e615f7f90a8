package main

import (
	"fmt"

	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the working tree status",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			branch, err := r.CurrentBranch()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if branch != "" {
				fmt.Fprintf(out, "On branch %s\n", branch)
			} else {
				fmt.Fprintln(out, "HEAD detached")
			}

			all, err := r.Status()
			if err != nil {
				return err
			}
			var entries []repo.StatusEntry
			for _, e := range all {
				if e.IndexStatus != repo.StatusClean || e.WorkStatus != repo.StatusClean {
					entries = append(entries, e)
				}
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "nothing to commit, working tree clean")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s %s %s\n", statusLabel(e.IndexStatus), statusLabel(e.WorkStatus), e.Path)
			}
			return nil
		},
	}
}

func statusLabel(s repo.FileStatus) string {
	switch s {
	case repo.StatusClean:
		return "  "
	case repo.StatusNew:
		return "A "
	case repo.StatusModified:
		return "M "
	case repo.StatusConflict:
		return "U "
	case repo.StatusDeleted:
		return "D "
	case repo.StatusUntracked:
		return "??"
	default:
		return "? "
	}
}
