package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show first-parent commit history",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			head, err := r.Refs.Resolve("HEAD")
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no commits yet")
				return nil
			}
			commits, err := r.Log(head, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			cur := head
			for _, c := range commits {
				fmt.Fprintf(out, "commit %s\n", cur.String())
				fmt.Fprintf(out, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
				fmt.Fprintf(out, "Date:   %s\n\n", time.Unix(c.Author.Timestamp, 0).UTC().Format(time.RFC1123Z))
				fmt.Fprintf(out, "    %s\n\n", c.Message)
				if len(c.Parents) == 0 {
					break
				}
				cur = c.Parents[0]
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of commits shown")
	return cmd
}
