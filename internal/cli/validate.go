package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/concord/internal/model"
	"github.com/ppiankov/concord/internal/pipeline"
)

var (
	outJSON       string
	outMD         string
	hint          string
	timeout       time.Duration
	noCache       bool
	noFooter      bool
	includeSource bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <file|url|->",
	Short: "Validate one source document across all configured agents",
	Long: `Validate asks every configured agent to extract the facts of a source
document, then:
- Drops citations that do not appear in the source text
- Groups facts by how many agents stated them
- Flags facts that contradict each other or rest on thin evidence
- Scores how far the combined result can be trusted

Use - to read the source from stdin.

Example:
  concord validate article.txt
  concord validate https://example.com/report --json report.json --md report.md
  cat notes.md | concord validate - --hint "quarterly revenue"
  concord validate article.txt --agent openai:gpt-4o-mini --agent ollama:llama3`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	// Output flags
	validateCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path (empty to skip)")
	validateCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	validateCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	validateCmd.Flags().BoolVar(&includeSource, "include-source", false, "append the source text to Markdown reports")

	// Run flags
	validateCmd.Flags().StringVar(&hint, "hint", "", "topic the agents should focus on")
	validateCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout including retries")
	validateCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the result cache (force fresh agent calls)")
}

// outputOverrides applies the report flags shared by validate and batch
func outputOverrides(cfg *model.Config) {
	cfg.Output.Verbose = cfg.Output.Verbose || verbose
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if includeSource {
		cfg.Output.IncludeSource = true
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	ref := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sess, err := newSession(ctx, !noCache, outputOverrides)
	if err != nil {
		return err
	}
	defer sess.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Validating: %s\n", ref)
		fmt.Fprintf(os.Stderr, "Agents:     %v\n", sess.pipeline.Agents())
		fmt.Fprintf(os.Stderr, "Quorum:     %d\n", sess.config.Consensus.MinModelsRequired)
		fmt.Fprintf(os.Stderr, "Cache:      %v\n", sess.cache != nil)
		fmt.Fprintln(os.Stderr)
	}

	var result *model.SourceValidationResult
	if ref == "-" {
		src, err := sess.pipeline.Loader().FromReader("stdin", cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		result, err = sess.pipeline.Validate(ctx, pipeline.Request{
			Source:    src.Text,
			Hint:      hint,
			SourceRef: src.Ref,
		})
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	} else {
		result, err = sess.pipeline.ValidateRef(ctx, ref, hint)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ %d/%d agents contributed\n", result.SuccessfulAgents(), len(result.Extractions))
		fmt.Fprintf(os.Stderr, "✓ %d agreed facts, %d discrepancies\n",
			len(result.FactConsensus.AgreedFacts), len(result.Discrepancies))
		if result.Cached {
			fmt.Fprintf(os.Stderr, "✓ Served from cache\n")
		}
		fmt.Fprintln(os.Stderr)
	}

	if err := sess.pipeline.RenderReport(result, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	return nil
}
