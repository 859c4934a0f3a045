package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftblob/internal/blobsdk"
	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		bucket      string
		name        string
		resumeDir   string
		concurrency int
		single      bool
		unconfirmed bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file, resuming an interrupted upload of the same file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}

			if single {
				return putFile(cmd, client, bucket, name, args[0], unconfirmed)
			}
			if unconfirmed {
				return fmt.Errorf("--unconfirmed needs --single, chunked uploads are always confirmed")
			}

			progress := newProgressPrinter(cmd.ErrOrStderr(), quiet)
			res, err := client.UploadFile(cmd.Context(), &blobsdk.UploadFileParams{
				Bucket:      bucket,
				FilePath:    args[0],
				Name:        name,
				ResumeDir:   resumeDir,
				Concurrency: concurrency,
				Callback:    progress.update,
			})
			progress.done()
			if err != nil {
				return err
			}

			return render(cmd, res, func(w io.Writer) {
				switch {
				case res.Deduplicated:
					fmt.Fprintln(w, green("already stored, no bytes sent"))
				case res.Resumed:
					fmt.Fprintf(w, "%s (%d chunks sent)\n", green("upload resumed and confirmed"), res.ChunksSent)
				default:
					fmt.Fprintf(w, "%s (%d chunks sent)\n", green("upload confirmed"), res.ChunksSent)
				}
				printObject(w, res.Object)
			})
		},
	}

	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "Target bucket")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Object name (defaults to the file name)")
	cmd.Flags().StringVar(&resumeDir, "resume-dir", "", "Directory for resume state")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", blobsdk.DefaultConcurrency, "Chunks uploaded in parallel")
	cmd.Flags().BoolVar(&single, "single", false, "Send the file in one request")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "Store a draft that must be confirmed later (with --single)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress")
	cmd.MarkFlagRequired("bucket")
	return cmd
}

func putFile(cmd *cobra.Command, client *blobsdk.Client, bucket, name, path string, unconfirmed bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if name == "" {
		name = filepath.Base(path)
	}

	var opts []blobsdk.ObjectOption
	if unconfirmed {
		opts = append(opts, blobsdk.Unconfirmed())
	}

	res, err := client.Put(cmd.Context(), bucket, name, "", f, opts...)
	if err != nil {
		return err
	}

	return render(cmd, res, func(w io.Writer) {
		switch {
		case res.Deduplicated:
			fmt.Fprintln(w, green("already stored"))
		case !res.Object.Confirmed:
			fmt.Fprintln(w, green("stored as draft"), gray("(run confirm to keep it)"))
		default:
			fmt.Fprintln(w, green("stored"))
		}
		printObject(w, res.Object)
	})
}

type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	quiet   bool
	printed bool
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{w: w, quiet: quiet}
}

func (p *progressPrinter) update(uploaded, total int64) {
	if p.quiet || total == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pct := float64(uploaded) * 100 / float64(total)
	fmt.Fprintf(p.w, "\r%s %s / %s (%.0f%%)", gray("uploading"), humanize.IBytes(uint64(uploaded)), humanize.IBytes(uint64(total)), pct)
	p.printed = true
}

func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed {
		fmt.Fprintln(p.w)
	}
}
