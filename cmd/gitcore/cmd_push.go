package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nyxforge/gitcore/pkg/merge"
	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/remote"
	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "push [remote] [branch]",
		Short: "Push a local branch to a remote",
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
			if branch == "" {
				branch, err = r.CurrentBranch()
				if err != nil {
					return err
				}
				if branch == "" {
					return fmt.Errorf("cannot infer branch while HEAD is detached; specify a branch")
				}
			}

			remoteName, remoteURL, err := resolveRemoteNameAndURL(r, remoteArg)
			if err != nil {
				return err
			}

			localRef := "refs/heads/" + branch
			localHash, err := r.Refs.Resolve(localRef)
			if err != nil {
				return fmt.Errorf("resolve local branch %q: %w", branch, err)
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
			remoteHash, hasRemote := remoteRefs[remoteRef]
			if hasRemote && remoteHash.IsZero() {
				hasRemote = false
			}

			if hasRemote && remoteHash == localHash {
				fmt.Fprintf(cmd.OutOrStdout(), "everything up-to-date (%s)\n", shortHash(localHash))
				return nil
			}

			if hasRemote && !force {
				if err := ensurePushIsFastForward(cmd.Context(), r, client, localHash, remoteHash); err != nil {
					return err
				}
			}

			stopRoots := make([]object.Hash, 0, len(remoteRefs))
			for _, h := range remoteRefs {
				if !h.IsZero() && r.Store.Exists(h) {
					stopRoots = append(stopRoots, h)
				}
			}
			objectsToPush, err := remote.CollectObjectsForPush(r.Store, []object.Hash{localHash}, stopRoots)
			if err != nil {
				return err
			}
			if len(objectsToPush) > 0 {
				if err := client.PushObjectsPack(cmd.Context(), objectsToPush); err != nil {
					return err
				}
			}

			var oldPtr *object.Hash
			if hasRemote {
				oldPtr = &remoteHash
			} else {
				zero := object.Hash{}
				oldPtr = &zero
			}
			newHash := localHash
			updated, err := client.UpdateRefs(cmd.Context(), []remote.RefUpdate{{
				Name: remoteRef,
				Old:  oldPtr,
				New:  &newHash,
			}})
			if err != nil {
				return err
			}

			finalHash := localHash
			if h, ok := updated[remoteRef]; ok && !h.IsZero() {
				finalHash = h
			}
			committer, err := resolvePerson(r, "committer")
			if err != nil {
				return err
			}

			trackingRef := remoteTrackingRefName(remoteName, remoteRef)
			if err := r.Refs.Update(trackingRef, finalHash, object.Hash{}, false, committer, "push "+remoteURL); err != nil {
				return err
			}

			if hasRemote {
				fmt.Fprintf(cmd.OutOrStdout(), "pushed branch %s: %s -> %s (%d object(s))\n", branch, shortHash(remoteHash), shortHash(finalHash), len(objectsToPush))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed new branch %s at %s (%d object(s))\n", branch, shortHash(finalHash), len(objectsToPush))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "allow a non-fast-forward update")
	return cmd
}

// ensurePushIsFastForward fetches the remote head into the local store if
// necessary and rejects the push unless it is a fast-forward of remoteHash.
func ensurePushIsFastForward(ctx context.Context, r *repo.Repo, client *remote.Client, localHash, remoteHash object.Hash) error {
	if !r.Store.Exists(remoteHash) {
		haves, err := localRefTips(r)
		if err != nil {
			return err
		}
		if _, err := remote.FetchIntoStore(ctx, client, r.Store, []object.Hash{remoteHash}, haves); err != nil {
			return fmt.Errorf("push safety check: fetch remote head: %w", err)
		}
	}
	base, err := merge.FindBase(r.Store, localHash, remoteHash)
	if err != nil {
		return fmt.Errorf("push safety check: %w", err)
	}
	if base != remoteHash {
		return fmt.Errorf("push rejected: non-fast-forward (local %s does not contain remote %s); use --force to overwrite", shortHash(localHash), shortHash(remoteHash))
	}
	return nil
}
