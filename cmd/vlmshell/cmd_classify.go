package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shahar-caura/vlmshell/internal/batch"
	"github.com/shahar-caura/vlmshell/internal/failure"
	"github.com/spf13/cobra"
)

func newClassifyCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify one image and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, true)
			if err != nil {
				return err
			}
			res, err := shell.ClassifyImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newClassifyDirCmd(logger *slog.Logger, opts *rootOptions) *cobra.Command {
	var parallel int
	var markdown, asJSON bool

	cmd := &cobra.Command{
		Use:   "classify-dir <path>...",
		Short: "Classify every image under the given files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, err := loadShell(opts, logger, true)
			if err != nil {
				return err
			}
			if parallel > 0 {
				shell.Batch.Parallel = parallel
			}

			images, err := batch.FindImages(args, shell.Config.Batch.Extensions)
			if err != nil {
				return err
			}
			if len(images) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No images found.")
				return nil
			}

			rep := shell.ClassifyAll(cmd.Context(), images)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), reportJSON(rep)); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), rep, markdown)
			}

			if n := rep.Failed(); n > 0 {
				return fmt.Errorf("%d of %d images failed", n, len(rep.Items))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "concurrent classifications (default from batch.parallel)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "render the table as Markdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.MarkFlagsMutuallyExclusive("markdown", "json")
	return cmd
}

type itemJSON struct {
	Path       string  `json:"path"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	Original   string  `json:"original_response,omitempty"`
	Error      string  `json:"error,omitempty"`
	Kind       string  `json:"kind,omitempty"`
}

type reportOut struct {
	ID     string     `json:"id"`
	Failed int        `json:"failed"`
	Items  []itemJSON `json:"items"`
}

func reportJSON(rep *batch.Report) reportOut {
	out := reportOut{ID: rep.ID, Failed: rep.Failed(), Items: make([]itemJSON, len(rep.Items))}
	for i, it := range rep.Items {
		row := itemJSON{Path: it.Path}
		if it.Err != nil {
			row.Error = it.Err.Error()
			row.Kind = failure.KindOf(it.Err).String()
		} else {
			row.Category = it.Result.Category
			row.Confidence = it.Result.Confidence
			row.Original = it.Result.OriginalResponse
		}
		out.Items[i] = row
	}
	return out
}

func renderReport(w io.Writer, rep *batch.Report, markdown bool) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Image", "Category", "Confidence", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 40},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, WidthMax: 60},
	})

	for _, it := range rep.Items {
		if it.Err != nil {
			t.AppendRow(table.Row{it.Path, "", "", fmt.Sprintf("%s: %v", failure.KindOf(it.Err), it.Err)})
			continue
		}
		t.AppendRow(table.Row{it.Path, it.Result.Category, fmt.Sprintf("%.2f", it.Result.Confidence), ""})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d images", len(rep.Items)),
		"",
		"",
		fmt.Sprintf("%d failed", rep.Failed()),
	})

	if markdown {
		_, _ = fmt.Fprintln(w, t.RenderMarkdown())
		return
	}
	_, _ = fmt.Fprintln(w, t.Render())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
