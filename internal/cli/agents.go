package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/concord/internal/coordinator"
)

var probeTimeout time.Duration

// agentsCmd represents the agents command
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agents and check that each endpoint answers",
	Long: `Agents lists every enabled agent and probes its endpoint: an API key
check for hosted providers, a request to the local server for Ollama.

Example:
  concord agents
  concord agents --agent openai:gpt-4o-mini --agent ollama:llama3.1`,
	Args: cobra.NoArgs,
	RunE: runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)

	agentsCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "probe timeout")
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.EnabledAgents()) == 0 {
		return fmt.Errorf("no agents configured: add agents to %s or pass --agent provider:model", configPathHint())
	}

	coord, err := coordinator.FromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	models := make(map[string]string, len(cfg.Agents))
	for _, a := range cfg.EnabledAgents() {
		models[a.ID] = a.Model
	}

	down := 0
	for _, st := range coord.Probe(ctx) {
		mark := "✓"
		if !st.Available {
			mark = "✗"
			down++
		}
		fmt.Fprintf(out, "%s %-20s %-10s %s\n", mark, st.AgentID, st.Provider, models[st.AgentID])
	}

	available := len(cfg.EnabledAgents()) - down
	fmt.Fprintf(out, "\n%d/%d agents available (quorum: %d)\n", available, available+down, cfg.Consensus.MinModelsRequired)
	if available < cfg.Consensus.MinModelsRequired {
		return fmt.Errorf("quorum unreachable: %d available, %d required", available, cfg.Consensus.MinModelsRequired)
	}
	return nil
}
