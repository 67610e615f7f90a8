package main

import (
	"errors"
	"fmt"

	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var signKeyPath string
	var sign bool

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record staged changes as a new commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := openRepo()
			if err != nil {
				return err
			}

			author, err := resolvePerson(r, "author")
			if err != nil {
				return err
			}
			committer, err := resolvePerson(r, "committer")
			if err != nil {
				return err
			}

			var signer repo.CommitSigner
			if sign {
				s, _, err := newSSHCommitSigner(signKeyPath)
				if err != nil {
					return err
				}
				signer = s
			}

			h, err := r.CommitWithSigner(message, author, committer, signer)
			if err != nil {
				if errors.Is(err, repo.ErrEmptyCommit) || errors.Is(err, repo.ErrUnresolvedConflicts) {
					return err
				}
				return err
			}

			branch, _ := r.CurrentBranch()
			if branch == "" {
				branch = "HEAD"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, shortHash(h), firstLineOf(message))
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&signKeyPath, "signing-key", "", "path to the SSH private key to sign with (default: ~/.ssh/id_ed25519 etc.)")

	return cmd
}

func firstLineOf(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
