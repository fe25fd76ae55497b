package main

import (
	"errors"
	"fmt"
	"github.com/davejbax/go-ifwi"
	"github.com/davejbax/go-ifwi/internal/encode"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"os"
	"strings"
)

// Extracting only writes TO, so a dry run would have nothing to show
var errDryRunExtract = errors.New("--dry-run cannot be used with extract")

func (a *app) newPrintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "print INPUT",
		Short: "print the partition table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withImage(cmd, args[0], false, func(img *ifwi.Image) error {
				_, err := img.WriteTo(cmd.OutOrStdout())
				return err
			})
		},
	}
}

func (a *app) newAddCommand() *cobra.Command {
	var typeName, start, size, end string

	names := make([]string, 0)
	for _, t := range ifwi.PartitionTypes() {
		names = append(names, "  "+t.String())
	}

	cmd := &cobra.Command{
		Use:   "add INPUT --type TYPE --start START (--size SIZE | --end END)",
		Short: "add a new partition",
		Long:  "Add a new partition.\n\nSupported TYPEs:\n" + strings.Join(names, "\n"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ifwi.ParsePartitionTypeName(typeName)
			if err != nil {
				return err
			}

			startValue, err := encode.ParseUint32(start)
			if err != nil {
				return err
			}

			d, err := newDescriptorFromFlags(t, startValue, size, end)
			if err != nil {
				return err
			}

			return a.withImage(cmd, args[0], true, func(img *ifwi.Image) error {
				return img.Add(d.Type, d.Start, d.Size)
			})
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "", "partition type")
	cmd.Flags().StringVar(&start, "start", "", "absolute start offset")
	cmd.Flags().StringVar(&size, "size", "", "size in bytes")
	cmd.Flags().StringVar(&end, "end", "", "absolute end offset")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("start")
	cmd.MarkFlagsOneRequired("size", "end")
	cmd.MarkFlagsMutuallyExclusive("size", "end")

	return cmd
}

func newDescriptorFromFlags(t ifwi.PartitionType, start uint32, size string, end string) (*ifwi.Descriptor, error) {
	if end != "" {
		endValue, err := encode.ParseUint32(end)
		if err != nil {
			return nil, err
		}

		return ifwi.NewDescriptorWithEnd(t, start, endValue)
	}

	sizeValue, err := encode.ParseUint32(size)
	if err != nil {
		return nil, err
	}

	return ifwi.NewDescriptor(t, start, sizeValue)
}

func (a *app) newMoveCommand() *cobra.Command {
	var start, size, end string

	cmd := &cobra.Command{
		Use:   "move INPUT NUMBER [--start START] [--size SIZE | --end END]",
		Short: "move/resize a partition",
		Long: `Move and/or resize a partition.

START defaults to the partition's current start, and the size defaults to its
current size. Partitions can only be moved forwards, and S-BPDT partitions can
only grow.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := encode.ParseIndex(args[1])
			if err != nil {
				return err
			}

			var req ifwi.MoveRequest
			for _, field := range []struct {
				value  string
				target **uint32
			}{
				{start, &req.Start},
				{size, &req.Size},
				{end, &req.End},
			} {
				if field.value == "" {
					continue
				}

				v, err := encode.ParseUint32(field.value)
				if err != nil {
					return err
				}

				*field.target = &v
			}

			return a.withImage(cmd, args[0], true, func(img *ifwi.Image) error {
				d, err := img.Descriptor(index)
				if err != nil {
					return err
				}

				return img.Move(d, req)
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "new absolute start offset")
	cmd.Flags().StringVar(&size, "size", "", "new size in bytes")
	cmd.Flags().StringVar(&end, "end", "", "new absolute end offset")
	cmd.MarkFlagsMutuallyExclusive("size", "end")

	return cmd
}

func (a *app) newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete INPUT NUMBER",
		Short: "remove a partition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := encode.ParseIndex(args[1])
			if err != nil {
				return err
			}

			return a.withImage(cmd, args[0], true, func(img *ifwi.Image) error {
				return img.Delete(index)
			})
		},
	}
}

func (a *app) newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract INPUT NUMBER TO",
		Short: "extract a partition",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.dryRun {
				return errDryRunExtract
			}

			index, err := encode.ParseIndex(args[1])
			if err != nil {
				return err
			}

			return a.withImage(cmd, args[0], false, func(img *ifwi.Image) error {
				to, err := a.fs.OpenFile(args[2], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
				if err != nil {
					return fmt.Errorf("could not create '%s': %w", args[2], err)
				}

				written, err := img.Extract(index, to)
				if err != nil {
					to.Close()
					return err
				}

				a.log.WithField("bytes", written).Infof("Extracted partition %d to %s", index, args[2])
				return to.Close()
			})
		},
	}
}

func (a *app) newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update INPUT NUMBER FROM",
		Short: "update a partition",
		Long: `Replace the contents of a partition with the contents of FROM. If FROM is a
different size to the partition, the partition is resized as with 'move'.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := encode.ParseIndex(args[1])
			if err != nil {
				return err
			}

			payload, err := afero.ReadFile(a.fs, args[2])
			if err != nil {
				return fmt.Errorf("could not read '%s': %w", args[2], err)
			}

			return a.withImage(cmd, args[0], true, func(img *ifwi.Image) error {
				return img.Update(index, payload)
			})
		},
	}
}
