package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show which chunks an upload is still waiting for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}

			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return render(cmd, status, func(w io.Writer) {
				received := status.ChunkCount - len(status.PendingChunks)
				fmt.Fprintf(w, "%s %s\n", cyan("upload: "), status.UploadID)
				fmt.Fprintf(w, "%s %s/%s\n", cyan("object: "), status.Bucket, status.Name)
				fmt.Fprintf(w, "%s %s\n", cyan("size:   "), humanize.IBytes(uint64(status.Size)))
				fmt.Fprintf(w, "%s %s\n", cyan("state:  "), status.State)
				fmt.Fprintf(w, "%s %d/%d received\n", cyan("chunks: "), received, status.ChunkCount)
				fmt.Fprintf(w, "%s %s\n", cyan("pending:"), chunkRanges(status.PendingChunks))
				fmt.Fprintf(w, "%s %s (%s)\n", cyan("expires:"), status.ExpiresAt.Format(time.RFC3339), humanize.Time(status.ExpiresAt))
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <upload-id>",
		Short: "Abandon an upload and discard its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("cancelled"), args[0])
			return nil
		},
	}
}
