package main

import (
	"fmt"
	"time"

	"github.com/nyxforge/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newGCCmd() *cobra.Command {
	var expire time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Pack loose objects, compact the ref namespace, and prune unreachable objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			result, err := r.GC(expire)
			if err != nil {
				return err
			}
			if err := r.Repack(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "packed %d objects into %s, pruned %d loose duplicate(s), pruned %d unreachable object(s)\n",
				result.Packed.PackedObjects, result.Packed.PackFile, result.Pruned, result.PrunedUnreachable)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expire, "prune-expire", repo.DefaultGCSafetyWindow, "minimum age of an unreachable object before gc deletes it")
	return cmd
}
