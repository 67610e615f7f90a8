package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/nyxforge/gitcore/pkg/merge"
	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/remote"
	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newPullCmd() *cobra.Command {
	var allowMerge bool

	cmd := &cobra.Command{
		Use:   "pull [remote] [branch]",
		Short: "Fetch from a remote and fast-forward (or merge with --merge)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			remoteArg, branch := "", ""
			if len(args) > 0 {
				remoteArg = args[0]
			}
			if len(args) > 1 {
				branch = strings.TrimSpace(args[1])
			}

			currentBranch, err := r.CurrentBranch()
			if err != nil {
				return err
			}
			if branch == "" {
				branch = currentBranch
			}
			if branch == "" {
				return fmt.Errorf("cannot infer branch while HEAD is detached; specify a branch")
			}

			remoteName, remoteURL, err := resolveRemoteNameAndURL(r, remoteArg)
			if err != nil {
				return err
			}

			client, err := remote.NewClient(remoteURL)
			if err != nil {
				return err
			}
			remoteRefs, err := client.ListRefs(cmd.Context())
			if err != nil {
				return err
			}

			remoteRef := "heads/" + branch
			remoteHash, ok := remoteRefs[remoteRef]
			if !ok || remoteHash.IsZero() {
				return fmt.Errorf("remote branch %q not found", branch)
			}

			localRef := "refs/heads/" + branch
			localHash, localErr := r.Refs.Resolve(localRef)
			hasLocal := localErr == nil

			haves, err := localRefTips(r)
			if err != nil {
				return err
			}
			fetched, err := remote.FetchIntoStore(cmd.Context(), client, r.Store, []object.Hash{remoteHash}, haves)
			if err != nil {
				return err
			}
			committer, err := resolvePerson(r, "committer")
			if err != nil {
				return err
			}

			trackingRef := remoteTrackingRefName(remoteName, remoteRef)
			if err := r.Refs.Update(trackingRef, remoteHash, object.Hash{}, false, committer, "pull "+remoteURL); err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if hasLocal && localHash == remoteHash {
				fmt.Fprintf(out, "already up to date (%s)\n", shortHash(remoteHash))
				return nil
			}

			if hasLocal {
				base, err := merge.FindBase(r.Store, localHash, remoteHash)
				if err != nil {
					return fmt.Errorf("pull: merge-base: %w", err)
				}
				if base == remoteHash {
					fmt.Fprintf(out, "already up to date (local %s is ahead of remote %s)\n", shortHash(localHash), shortHash(remoteHash))
					return nil
				}
				if base != localHash {
					if !allowMerge {
						return fmt.Errorf("pull would not fast-forward %s (local %s, remote %s); retry with --merge", branch, shortHash(localHash), shortHash(remoteHash))
					}
					if currentBranch != branch {
						return fmt.Errorf("pull --merge requires checked out branch %q (current: %q)", branch, currentBranch)
					}
					return mergePulledBranch(cmd, r, branch, remoteHash, fetched)
				}
			}

			needsWorktreeUpdate := currentBranch == branch
			if needsWorktreeUpdate {
				// Check out by raw hash before moving the branch ref, so
				// Checkout's own clean-tree check still compares against
				// the pre-pull HEAD instead of the ref we are about to move.
				if err := r.Checkout(remoteHash.String()); err != nil {
					return fmt.Errorf("pull: %w", err)
				}
			}
			if err := r.Refs.Update(localRef, remoteHash, object.Hash{}, hasLocal, committer, "pull "+remoteURL); err != nil {
				return fmt.Errorf("pull: update %s: %w", localRef, err)
			}
			if needsWorktreeUpdate {
				if err := r.Refs.SetSymbolic("HEAD", localRef); err != nil {
					return fmt.Errorf("pull: restore HEAD: %w", err)
				}
			}

			if !hasLocal {
				fmt.Fprintf(out, "created local branch %s at %s (%d object(s) fetched)\n", branch, shortHash(remoteHash), fetched)
				return nil
			}
			fmt.Fprintf(out, "updated %s: %s -> %s (%d object(s) fetched)\n", branch, shortHash(localHash), shortHash(remoteHash), fetched)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowMerge, "merge", false, "allow a merge commit when fast-forward is not possible")
	return cmd
}

// mergePulledBranch merges the already-fetched remoteHash into branch via a
// temporary branch ref, since Repo.Merge operates on branch names.
func mergePulledBranch(cmd *cobra.Command, r *repo.Repo, branch string, remoteHash object.Hash, fetched int) error {
	tempBranch := temporaryPullBranch(branch)
	if err := r.CreateBranch(tempBranch, remoteHash); err != nil {
		return fmt.Errorf("pull: create temporary branch: %w", err)
	}
	defer func() { _ = r.DeleteBranch(tempBranch) }()

	report, err := r.Merge(tempBranch, repo.MergeOptions{})
	if err != nil {
		return fmt.Errorf("pull: merge: %w", err)
	}

	out := cmd.OutOrStdout()
	if report.Status == merge.Conflicts {
		for _, c := range report.Conflicts {
			fmt.Fprintf(out, "  CONFLICT: %s\n", c.Path)
		}
		return fmt.Errorf("pull: merge completed with %d conflict(s); resolve conflicts and commit", report.TotalConflicts)
	}
	fmt.Fprintf(out, "merged %s into %s (%d object(s) fetched)\n", shortHash(remoteHash), branch, fetched)
	return nil
}

func temporaryPullBranch(branch string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", " ", "-", ":", "-")
	safe := replacer.Replace(strings.TrimSpace(branch))
	if safe == "" {
		safe = "branch"
	}
	return fmt.Sprintf("__pull_%s_%d", safe, time.Now().UnixNano())
}
