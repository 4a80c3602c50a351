package listscmd

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/retention"
	"github.com/rzbill/listdb/internal/runtime"
	"github.com/rzbill/listdb/pkg/etag"
)

func newPruneCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "prune", Short: "Bulk removal commands"}

	before := &cobra.Command{
		Use:   "before NAME ETAG",
		Short: "Remove every record with etag <= ETAG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := etag.Parse(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				var n int
				err := rt.Update(ctx, func(tx kv.Txn) error {
					var err error
					n, err = rt.Store().RemoveAllBefore(ctx, tx, args[0], threshold)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s records from %s\n", humanize.Comma(int64(n)), args[0])
				return nil
			})
		},
	}

	olderThan := &cobra.Command{
		Use:   "older-than NAME AGE|TIME",
		Short: "Remove records created at or before a cutoff",
		Long:  "Remove records created at or before a cutoff given as an age (72h) or an RFC 3339 timestamp.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := parseCutoff(args[1], time.Now())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				var n int
				err := rt.Update(ctx, func(tx kv.Txn) error {
					var err error
					n, err = rt.Store().RemoveAllOlderThan(ctx, tx, args[0], cutoff)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s records from %s created before %s\n",
					humanize.Comma(int64(n)), args[0], humanize.Time(cutoff))
				return nil
			})
		},
	}

	cmd.AddCommand(before, olderThan)
	return cmd
}

func parseCutoff(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.Newf("cutoff %q is neither a duration nor an RFC 3339 time", s)
}

func newRetentionCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "retention", Short: "Retention commands"}
	run := &cobra.Command{
		Use:   "run",
		Short: "Prune every list configured under retention.lists once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				m := retention.New(rt.Engine(), rt.Store(), rt.Config().Retention, rt.Logger())
				rep, err := m.RunOnce(ctx)
				for name, n := range rep.Removed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, humanize.Comma(int64(n)))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "total\t%s\n", humanize.Comma(int64(rep.Total)))
				return err
			})
		},
	}
	cmd.AddCommand(run)
	return cmd
}
