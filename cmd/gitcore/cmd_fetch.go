package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/remote"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [remote] [branch]",
		Short: "Download objects and refs from a remote",
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

			wantRefs := make(map[string]object.Hash)
			if branch != "" {
				key := "heads/" + branch
				h, ok := remoteRefs[key]
				if !ok {
					return fmt.Errorf("remote branch %q not found", branch)
				}
				wantRefs[key] = h
			} else {
				for name, h := range remoteRefs {
					if strings.HasPrefix(name, "heads/") {
						wantRefs[name] = h
					}
				}
			}
			if len(wantRefs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matching remote branches")
				return nil
			}

			wants := make([]object.Hash, 0, len(wantRefs))
			for _, h := range wantRefs {
				if !h.IsZero() {
					wants = append(wants, h)
				}
			}
			haves, err := localRefTips(r)
			if err != nil {
				return err
			}
			fetched, err := remote.FetchIntoStore(cmd.Context(), client, r.Store, wants, haves)
			if err != nil {
				return err
			}

			committer, err := resolvePerson(r, "committer")
			if err != nil {
				return err
			}

			names := make([]string, 0, len(wantRefs))
			for name := range wantRefs {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				trackingRef := remoteTrackingRefName(remoteName, name)
				if err := r.Refs.Update(trackingRef, wantRefs[name], object.Hash{}, false, committer, "fetch "+remoteURL); err != nil {
					return fmt.Errorf("update %s: %w", trackingRef, err)
				}
				fmt.Fprintf(out, "%s -> %s\n", name, trackingRef)
			}
			fmt.Fprintf(out, "fetched %d object(s)\n", fetched)
			return nil
		},
	}
	return cmd
}
