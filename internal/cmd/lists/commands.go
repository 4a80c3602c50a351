package listscmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/lists"
	"github.com/rzbill/listdb/internal/runtime"
	"github.com/rzbill/listdb/pkg/etag"
)

func newSetCommand(g *globals) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "set NAME KEY [DATA|-]",
		Short: "Append a record to a list; prints the new etag",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := etag.ParseKind(kindName)
			if err != nil {
				return err
			}
			data, err := readData(cmd.InOrStdin(), args[2:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				var e etag.Etag
				err := rt.Update(ctx, func(tx kv.Txn) error {
					var err error
					e, err = rt.Store().Set(ctx, tx, args[0], args[1], data, kind)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), e.String())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", etag.KindLists.String(), "Etag kind tag")
	return cmd
}

// readData takes the DATA argument, or stdin when it is absent or "-".
func readData(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return nil, errors.Wrap(err, "read data from stdin")
	}
	return b, nil
}

func newGetCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME KEY",
		Short: "Print the newest record for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				return rt.View(ctx, func(tx kv.Txn) error {
					item, ok, err := rt.Store().Get(ctx, tx, args[0], args[1])
					if err != nil {
						return err
					}
					if !ok {
						return errors.Newf("%s/%s: not found", args[0], args[1])
					}
					return printItem(cmd.OutOrStdout(), item)
				})
			})
		},
	}
}

func newReadCommand(g *globals) *cobra.Command {
	var (
		start, end, filter string
		take, offset       int
	)
	cmd := &cobra.Command{
		Use:   "read NAME",
		Short: "Print records of a list in etag order",
		Long:  "Print records of a list in etag order, either after --start (exclusive) and before --end (exclusive) or from a positional --offset.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := lists.CompileFilter(filter)
			if err != nil {
				return err
			}
			var from etag.Etag
			if start != "" {
				if from, err = etag.Parse(start); err != nil {
					return err
				}
			}
			var to *etag.Etag
			if end != "" {
				e, err := etag.Parse(end)
				if err != nil {
					return err
				}
				to = &e
			}
			if offset > 0 && (start != "" || end != "") {
				return errors.New("--offset cannot be combined with --start or --end")
			}
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				return rt.View(ctx, func(tx kv.Txn) error {
					seq := rt.Store().Read(ctx, tx, args[0], from, to, take)
					if offset > 0 {
						seq = rt.Store().ReadAt(ctx, tx, args[0], offset, take)
					}
					for item, err := range f.Apply(seq) {
						if err != nil {
							return err
						}
						if err := printItem(cmd.OutOrStdout(), item); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Only records after this etag")
	cmd.Flags().StringVar(&end, "end", "", "Only records before this etag")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many records by position")
	cmd.Flags().IntVar(&take, "take", 100, "Maximum records to scan")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL filter over name, key, etag, created_ms, size, text, data")
	return cmd
}

func newLastCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "last NAME",
		Short: "Print the record with the greatest etag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				return rt.View(ctx, func(tx kv.Txn) error {
					item, ok, err := rt.Store().ReadLast(ctx, tx, args[0])
					if err != nil {
						return err
					}
					if !ok {
						return errors.Newf("%s: empty", args[0])
					}
					return printItem(cmd.OutOrStdout(), item)
				})
			})
		},
	}
}

func newRemoveCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME KEY",
		Short: "Remove the newest record for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				return rt.Update(ctx, func(tx kv.Txn) error {
					return rt.Store().Remove(ctx, tx, args[0], args[1])
				})
			})
		},
	}
}

func newCountCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "count NAME",
		Short: "Count records in a list, superseded ones included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				return rt.View(ctx, func(tx kv.Txn) error {
					n, err := rt.Store().Count(ctx, tx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), humanize.Comma(int64(n)))
					return nil
				})
			})
		},
	}
}

func newNamesCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "List every non-empty list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return g.withRuntime(ctx, func(rt *runtime.Runtime) error {
				return rt.View(ctx, func(tx kv.Txn) error {
					names, err := rt.Store().Names(ctx, tx)
					if err != nil {
						return err
					}
					for _, n := range names {
						fmt.Fprintln(cmd.OutOrStdout(), n)
					}
					return nil
				})
			})
		},
	}
}
