package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/concord/internal/pipeline"
)

var (
	councilJSON    string
	councilMD      string
	councilSystem  string
	councilTimeout time.Duration
)

// councilCmd represents the council command
var councilCmd = &cobra.Command{
	Use:   "council <prompt...>",
	Short: "Ask every agent the same question and pick the answer they agree on",
	Long: `Council sends one free-form prompt to every configured agent and selects
the answer that overlaps most with the others. Each answer is reported with
its similarity score, so outliers stay visible.

Example:
  concord council "What year did the Berlin Wall fall?"
  concord council --system "Answer with a single number." "How many moons does Mars have?"
  concord council "Summarize RFC 9110 in one sentence" --json council.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCouncil,
}

func init() {
	rootCmd.AddCommand(councilCmd)

	councilCmd.Flags().StringVar(&councilJSON, "json", "", "output JSON path (optional)")
	councilCmd.Flags().StringVar(&councilMD, "md", "", "output Markdown path (optional)")
	councilCmd.Flags().StringVar(&councilSystem, "system", "", "system prompt sent to every agent")
	councilCmd.Flags().DurationVar(&councilTimeout, "timeout", 2*time.Minute, "overall timeout")
	councilCmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the cached answer and ask the agents again")
}

func runCouncil(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, councilTimeout)
	defer cancel()

	sess, err := newSession(ctx, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Asking %d agents: %s\n\n", len(sess.pipeline.Agents()), prompt)
	}

	result, err := sess.pipeline.Council(ctx, pipeline.CouncilRequest{
		Prompt:  prompt,
		System:  councilSystem,
		NoCache: noCache,
	})
	if err != nil {
		return fmt.Errorf("council failed: %w", err)
	}

	if err := sess.pipeline.RenderCouncil(result, councilJSON, councilMD); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
