package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/syftblob/internal/blobsdk"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// render writes v as json or yaml, or calls text for the human format
func render(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	format, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()

	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case outputText, "":
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func printObject(w io.Writer, obj *blobsdk.Object) {
	fmt.Fprintf(w, "%s %s\n", cyan("id:     "), obj.ID)
	fmt.Fprintf(w, "%s %s\n", cyan("name:   "), obj.Name)
	fmt.Fprintf(w, "%s %s (%d bytes)\n", cyan("size:   "), humanize.IBytes(uint64(obj.Size)), obj.Size)
	fmt.Fprintf(w, "%s %s\n", cyan("digest: "), obj.Digest)
	fmt.Fprintf(w, "%s %s\n", cyan("created:"), obj.CreatedAt.Format(time.RFC3339))
}

// chunkRanges compresses sorted indexes into "0-3,5,7-8"
func chunkRanges(indexes []int) string {
	if len(indexes) == 0 {
		return "none"
	}
	var parts []string
	start, prev := indexes[0], indexes[0]
	flush := func() {
		if start == prev {
			parts = append(parts, fmt.Sprint(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, i := range indexes[1:] {
		if i == prev+1 {
			prev = i
			continue
		}
		flush()
		start, prev = i, i
	}
	flush()
	return strings.Join(parts, ",")
}
