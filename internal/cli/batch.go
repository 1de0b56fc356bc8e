package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/pipeline"
	"github.com/ppiankov/concord/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchHint    string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Validate many sources listed in a file",
	Long: `Batch validates every source listed in a file (one file path or URL per
line; blank lines and # comments are ignored):
- Sources are validated concurrently, each across all agents
- A failing source never stops the others
- Every source gets its own JSON and Markdown report

Example:
  concord batch sources.txt
  concord batch sources.txt --concurrency 2 --output-dir ./reports
  concord batch sources.txt --timeout 30m --hint "dates and figures"`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of sources validated at once (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./concord-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for the batch")
	batchCmd.Flags().StringVar(&batchHint, "hint", "", "topic the agents should focus on, for every source")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the result cache (force fresh agent calls)")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().BoolVar(&includeSource, "include-source", false, "append the source text to Markdown reports")
}

// hintedValidator applies one hint to every source of a batch
type hintedValidator struct {
	p    *pipeline.Pipeline
	hint string
}

func (h hintedValidator) ValidateSource(ctx context.Context, ref string) (*model.SourceValidationResult, error) {
	return h.p.ValidateRef(ctx, ref, h.hint)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	sess, err := newSession(ctx, !noCache, outputOverrides)
	if err != nil {
		return err
	}
	defer sess.Close()

	workers := concurrency
	if workers <= 0 {
		workers = sess.config.Concurrency.Workers
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Concord Batch Validation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Agents:       %s\n", strings.Join(sess.pipeline.Agents(), ", "))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	sources, err := worker.ReadSourcesFromFile(file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d sources\n", len(sources))
	fmt.Fprintf(os.Stderr, "⚙️  Validating with %d workers...\n", workers)
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(hintedValidator{p: sess.pipeline, hint: batchHint}, workers)
	results := processor.ProcessSources(ctx, sources)

	renderer := pipeline.NewRenderer(sess.config.Output, os.Stderr)
	used := make(map[string]int)

	for _, res := range results {
		if res.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Source, res.Error)
			continue
		}

		slug := uniqueSlug(used, sanitizeFilename(res.Source))
		jsonPath := filepath.Join(outputDir, slug+".json")
		mdPath := filepath.Join(outputDir, slug+".md")

		if err := renderer.RenderJSON(res.Result, jsonPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", res.Source, err)
			continue
		}
		if err := renderer.RenderMarkdown(res.Result, mdPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", res.Source, err)
			continue
		}

		level := "n/a"
		if res.Result.Assessment != nil {
			level = res.Result.Assessment.Level
		}
		fmt.Fprintf(os.Stderr, "✓ %s (confidence: %.2f, %s)\n", res.Source, res.Result.ValidationConfidence, level)
	}

	succeeded, failed := worker.Summary(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d sources\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failed > 0 && succeeded == 0 {
		return fmt.Errorf("all %d sources failed", failed)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"&", "_",
	"=", "_",
	" ", "-",
)

// sanitizeFilename turns a file path or URL into a safe report file name
func sanitizeFilename(s string) string {
	if rest, ok := strings.CutPrefix(s, "https://"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "http://"); ok {
		s = rest
	} else {
		s = strings.TrimSuffix(filepath.Base(s), filepath.Ext(s))
	}
	s = strings.Trim(filenameReplacer.Replace(s), "_.-")

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" {
		s = "source"
	}
	return s
}

// uniqueSlug suffixes repeated slugs so reports never overwrite each other
func uniqueSlug(used map[string]int, slug string) string {
	used[slug]++
	if n := used[slug]; n > 1 {
		return fmt.Sprintf("%s-%d", slug, n)
	}
	return slug
}
