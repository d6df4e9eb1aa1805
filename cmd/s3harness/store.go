package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/objectfs/s3harness/internal/harness"
	"github.com/objectfs/s3harness/pkg/utils"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <bucket> <key> <content>",
		Short: "Store an object and mirror it locally",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				if err := h.Store().Put(ctx, args[0], args[1], []byte(args[2])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newPutBlobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put-blob <bucket> [size] [key]",
		Short: "Store an object of random bytes",
		Long: `Store an object of random bytes. Size is a byte count with an optional
K, M or G suffix (1024 multiples), e.g. 512, 64K, 5M. When omitted it
defaults to harness.random_object_size. A random key is used when none is
given.`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizeArg := cfg.Harness.RandomObjectSize
			if len(args) > 1 {
				sizeArg = args[1]
			}
			size, err := utils.ParseBytes(sizeArg)
			if err != nil {
				return err
			}
			var key string
			if len(args) > 2 {
				key = args[2]
			}

			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				stored, err := h.Store().RandomFile(ctx, args[0], size, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s (%s)\n", args[0], stored, utils.FormatBytes(size))
				return nil
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <bucket> <key>",
		Short: "Write an object's content to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				data, err := h.Store().Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newWriteRandomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-random <bucket> <count>",
		Short: "Write count objects whose content is their random key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[1])
			if err != nil || count < 0 {
				return fmt.Errorf("invalid count %q", args[1])
			}

			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				for i := 0; i < count; i++ {
					if _, err := h.Store().CreateFile(ctx, args[0], "", nil); err != nil {
						return fmt.Errorf("write %d of %d: %w", i+1, count, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d objects to '%s' bucket\n", count, args[0])
				return nil
			})
		},
	}
}

func newBucketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "buckets",
		Aliases: []string{"list-buckets"},
		Short:   "List buckets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				names, err := h.Store().ListBuckets(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func newKeysCmd() *cobra.Command {
	var mirror bool

	cmd := &cobra.Command{
		Use:     "keys <bucket>",
		Aliases: []string{"list-keys"},
		Short:   "List the keys of a bucket",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				var keys []string
				var err error
				if mirror {
					keys, err = h.Store().MirrorKeys(args[0])
				} else {
					keys, err = h.Store().ListBucketKeys(ctx, args[0])
				}
				if err != nil {
					return err
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&mirror, "mirror", false, "list the local mirror instead of the store")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [bucket...]",
		Short: "Delete every object of the given buckets, or of all buckets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd, func(ctx context.Context, h *harness.Harness) error {
				buckets, err := bucketsOrAll(ctx, h.Store(), args)
				if err != nil {
					return err
				}
				for _, b := range buckets {
					n, err := h.Store().Clear(ctx, b)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %d objects from '%s' bucket\n", n, b)
				}
				return nil
			})
		},
	}
}

type bucketLister interface {
	ListBuckets(ctx context.Context) ([]string, error)
}

// bucketsOrAll returns args, or every bucket in the store when args is empty.
func bucketsOrAll(ctx context.Context, l bucketLister, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	return l.ListBuckets(ctx)
}
