package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"askdb/internal/plot"
	"askdb/internal/workflow"
)

var (
	askCopy  bool
	askJSON  bool
	askWidth int
)

var askCmd = &cobra.Command{
	Use:   "ask [database] [question]",
	Short: "Ask a question about a database using Claude",
	Long: `Ask a natural language question about a database and get an answer or a chart.

The database can be a SQLite or DuckDB file, a CSV, TSV or Parquet file, a zip
archive holding one of those, or an http(s) URL to any of them.

Charts are written to a temporary file whose path is printed.

Requires ANTHROPIC_API_KEY environment variable to be set.

Example:
  askdb ask chinook.db "How many albums does Alis in Chains have?"
  askdb ask chinook.db "Plot a pie chart showing the distribution of tracks by genre"
  askdb ask sales.csv "Which region sold the most units?" --copy`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		source, question := args[0], args[1]

		p, err := newPipeline(ctx)
		if err != nil {
			HandleError(err, "Failed to initialize pipeline")
		}

		var resp workflow.Response
		err = runWithSpinner(ctx, "Thinking...", func(ctx context.Context) error {
			h, err := openDatabase(ctx, source)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer h.Close()

			ix := p.newIndex()
			if ix != nil {
				if _, err := ix.Rebuild(ctx, h, cfg.Nouns.StripNumbers); err != nil {
					logger.Warn("Proper noun index build failed", "error", err)
				}
			}

			wf, err := p.workflow(h, ix)
			if err != nil {
				return err
			}
			resp = wf.Handle(ctx, question)
			return nil
		})
		if err != nil {
			HandleError(err, "Failed to answer question")
		}

		if askJSON {
			printJSON(resp)
			return
		}
		printResponse(resp)
	},
}

func printResponse(resp workflow.Response) {
	nodeStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	fmt.Fprintln(os.Stderr, nodeStyle.Render(string(resp.Node)))
	if resp.Error != "" {
		fmt.Fprintln(os.Stderr, errorStyle.Render(resp.Error))
	}
	if resp.Result == nil {
		fmt.Println("No result.")
		os.Exit(1)
	}

	out := *resp.Result
	switch resp.Kind {
	case plot.KindHTML, plot.KindImage:
		path, err := writePayload(resp.Kind, *resp.Result, resp.MIME)
		if err != nil {
			HandleError(err, "Failed to save chart")
		}
		out = path
		fmt.Printf("Chart saved to %s\n", path)
	default:
		rendered, err := renderMarkdown(out, askWidth)
		if err != nil {
			fmt.Println(out)
		} else {
			fmt.Print(rendered)
		}
	}

	if askCopy {
		if err := clipboard.WriteAll(out); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Failed to copy to clipboard: "+err.Error()))
		}
	}
}

// writePayload saves a chart to a temporary file and returns its path.
func writePayload(kind plot.Kind, data, mimeType string) (string, error) {
	ext := ".html"
	raw := []byte(data)
	if kind == plot.KindImage {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("invalid image payload: %w", err)
		}
		raw = decoded
		ext = ".png"
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}

	f, err := os.CreateTemp("", "askdb-chart-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return "", err
	}
	return f.Name(), f.Close()
}

func init() {
	askCmd.Flags().BoolVar(&askCopy, "copy", false, "Copy the answer (or chart path) to the clipboard")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw response as JSON")
	askCmd.Flags().IntVarP(&askWidth, "width", "w", 100, "Word wrap width for text answers")
	rootCmd.AddCommand(askCmd)
}
