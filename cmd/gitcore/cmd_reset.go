package main

import "github.com/spf13/cobra"

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [path]...",
		Short: "Unstage paths back to HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			return r.Reset(args)
		},
	}
}
