package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftblob/internal/blobsdk"
	"github.com/openmined/syftblob/internal/utils"
	"github.com/spf13/cobra"
)

func newBucketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			res, err := client.Buckets(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) {
				for _, b := range res.Buckets {
					limit := "server default"
					if b.MaxObjectSize > 0 {
						limit = humanize.IBytes(uint64(b.MaxObjectSize))
					}
					fmt.Fprintf(w, "%s %s\n", b.ID, gray("max "+limit))
				}
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <bucket>",
		Short: "List objects in a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			objects, err := client.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd, objects, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSIZE\tDIGEST\tCREATED")
				for _, obj := range objects {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", obj.ID, obj.Name, humanize.IBytes(uint64(obj.Size)), shortDigest(obj.Digest), humanize.Time(obj.CreatedAt))
				}
				tw.Flush()
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "get <bucket> <object-id>",
		Short: "Download an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}

			if outFile == "" || outFile == "-" {
				_, err := client.Download(cmd.Context(), args[0], args[1], cmd.OutOrStdout())
				return err
			}

			f, err := utils.CreateTempSibling(outFile)
			if err != nil {
				return err
			}
			defer os.Remove(f.Name())

			n, err := client.Download(cmd.Context(), args[0], args[1], f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if err := os.Rename(f.Name(), outFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s (%s)\n", green("saved"), outFile, humanize.IBytes(uint64(n)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "O", "", "Write to a file instead of stdout")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <bucket> <object-id>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("deleted"), args[1])
			return nil
		},
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func newRapidCmd() *cobra.Command {
	var (
		name        string
		unconfirmed bool
	)

	cmd := &cobra.Command{
		Use:   "rapid <bucket> <file>",
		Short: "Store a file by digest alone, when the bucket already holds its content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			buckets, err := client.Buckets(cmd.Context())
			if err != nil {
				return err
			}
			digest, err := blobsdk.DigestFile(buckets.DigestAlgorithm, args[1])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[1])
			}

			var opts []blobsdk.ObjectOption
			if unconfirmed {
				opts = append(opts, blobsdk.Unconfirmed())
			}

			obj, err := client.Rapid(cmd.Context(), args[0], name, digest, opts...)
			if err != nil {
				if blobsdk.IsCode(err, blobsdk.CodeObjectNotFound) {
					return fmt.Errorf("content not stored yet, use upload instead: %w", err)
				}
				return err
			}
			return render(cmd, obj, func(w io.Writer) {
				fmt.Fprintln(w, green("linked"))
				printObject(w, obj)
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Object name (defaults to the file name)")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "Store a draft that must be confirmed later")
	return cmd
}

type confirmResult struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	Requested int    `json:"requested" yaml:"requested"`
	Confirmed int    `json:"confirmed" yaml:"confirmed"`
}

func newConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <bucket> <id>...",
		Short: "Keep draft objects stored with --unconfirmed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}

			n, err := client.Confirm(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}

			res := &confirmResult{Bucket: args[0], Requested: len(args) - 1, Confirmed: n}
			return render(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "%s %d of %d\n", green("confirmed"), res.Confirmed, res.Requested)
			})
		},
	}
}
