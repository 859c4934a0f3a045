package main

import (
	"fmt"
	"io"

	"github.com/openmined/syftblob/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print SyftBlob version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, version.Get(), func(w io.Writer) {
				fmt.Fprintln(w, version.Detailed())
			})
		},
	}
}
