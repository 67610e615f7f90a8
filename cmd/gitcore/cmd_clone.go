package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/remote"
	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newCloneCmd() *cobra.Command {
	var remoteName string
	var branch string

	cmd := &cobra.Command{
		Use:   "clone <url> [dest]",
		Short: "Clone a remote repository into a new local directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]

			client, err := remote.NewClient(source)
			if err != nil {
				return err
			}

			dest := ""
			if len(args) == 2 {
				dest = args[1]
			} else {
				dest = client.Endpoint().Repo
			}
			if strings.TrimSpace(dest) == "" {
				return fmt.Errorf("destination directory is required")
			}
			absDest, err := filepath.Abs(dest)
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}
			if err := ensureEmptyDir(absDest); err != nil {
				return err
			}

			r, err := repo.Init(absDest)
			if err != nil {
				return err
			}
			if err := r.SetRemote(remoteName, source); err != nil {
				return err
			}

			remoteRefs, err := client.ListRefs(cmd.Context())
			if err != nil {
				return err
			}

			wants := make([]object.Hash, 0, len(remoteRefs))
			for _, h := range remoteRefs {
				if !h.IsZero() {
					wants = append(wants, h)
				}
			}
			if len(wants) > 0 {
				if _, err := remote.FetchIntoStore(cmd.Context(), client, r.Store, wants, nil); err != nil {
					return err
				}
			}

			committer, err := resolvePerson(r, "committer")
			if err != nil {
				return err
			}

			for name, h := range remoteRefs {
				if h.IsZero() {
					continue
				}
				if err := r.Refs.Update(remoteTrackingRefName(remoteName, name), h, object.Hash{}, false, committer, "clone "+source); err != nil {
					return err
				}
			}

			if len(remoteRefs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "cloned empty repository into %s\n", absDest)
				return nil
			}

			selectedBranch := strings.TrimSpace(branch)
			var selectedHash object.Hash
			if selectedBranch == "" {
				var ok bool
				selectedBranch, selectedHash, ok = chooseDefaultBranch(remoteRefs)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "cloned repository into %s (no branch heads found)\n", absDest)
					return nil
				}
			} else {
				h, ok := remoteRefs["heads/"+selectedBranch]
				if !ok || h.IsZero() {
					return fmt.Errorf("remote branch %q not found", selectedBranch)
				}
				selectedHash = h
			}

			// Checkout by commit hash while HEAD still points at the unborn
			// default branch, so the clean-tree check has nothing stale to
			// compare against; only then move the branch ref into place.
			if err := r.Checkout(selectedHash.String()); err != nil {
				return err
			}
			if err := r.Refs.Update("refs/heads/"+selectedBranch, selectedHash, object.Hash{}, false, committer, "clone "+source); err != nil {
				return err
			}
			if err := r.Refs.SetSymbolic("HEAD", "refs/heads/"+selectedBranch); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cloned %s into %s\n", source, absDest)
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteName, "remote-name", "origin", "name to assign to the cloned remote")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to checkout after clone")
	return cmd
}

func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o755)
		}
		return fmt.Errorf("stat destination %q: %w", dir, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("destination %q is not empty", dir)
	}
	return nil
}

// chooseDefaultBranch prefers "main", then "master", then any remaining
// branch head in sorted order so the result is deterministic.
func chooseDefaultBranch(remoteRefs map[string]object.Hash) (string, object.Hash, bool) {
	for _, preferred := range []string{"main", "master"} {
		if h, ok := remoteRefs["heads/"+preferred]; ok && !h.IsZero() {
			return preferred, h, true
		}
	}
	names := make([]string, 0, len(remoteRefs))
	for name, h := range remoteRefs {
		if !h.IsZero() && strings.HasPrefix(name, "heads/") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", object.Hash{}, false
	}
	sort.Strings(names)
	branch := strings.TrimPrefix(names[0], "heads/")
	return branch, remoteRefs[names[0]], true
}
