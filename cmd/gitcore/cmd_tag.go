package main

import (
	"fmt"

	"github.com/nyxforge/gitcore/pkg/object"
	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	var message string
	var force bool
	var del bool

	cmd := &cobra.Command{
		Use:   "tag [name] [target]",
		Short: "Create, list, or delete tags",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				names, err := r.ListTags()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			name := args[0]
			if del {
				return r.DeleteTag(name)
			}

			target, err := resolveTagTarget(r, args)
			if err != nil {
				return err
			}

			if message == "" {
				return r.CreateTag(name, target, force)
			}

			tagger, err := resolvePerson(r, "author")
			if err != nil {
				return err
			}
			_, err = r.CreateAnnotatedTag(name, target, tagger, message, force)
			return err
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "annotated tag message")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing tag")
	cmd.Flags().BoolVarP(&del, "delete", "d", false, "delete the named tag")
	return cmd
}

func resolveTagTarget(r *repo.Repo, args []string) (object.Hash, error) {
	if len(args) > 1 {
		if h, err := object.ParseHash(args[1]); err == nil {
			return h, nil
		}
		return r.Refs.Resolve("refs/heads/" + args[1])
	}
	return r.Refs.Resolve("HEAD")
}
