// Command agentctl is a minimal CLI that wires config resolution, the
// provider registry, the tool registry, the hook pipeline, and the agent
// loop into a single-shot query command (SPEC_FULL.md §5 "cmd/agentctl:
// minimal CLI wiring the pieces together").
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nexusrun/agentrt/internal/agent"
	"github.com/nexusrun/agentrt/internal/agent/providers"
	"github.com/nexusrun/agentrt/internal/config"
	"github.com/nexusrun/agentrt/pkg/models"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Drive the agent runtime from the command line",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")

	root.AddCommand(buildRunCmd(&configPath))
	root.AddCommand(buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "agentctl %s (%s)\n", version, commit)
			return nil
		},
	}
}

func buildRunCmd(configPath *string) *cobra.Command {
	var (
		providerName string
		model        string
		maxTurns     int
		stream       bool
		systemPrompt string
	)

	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Send one message through the agent loop and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			resolver := config.NewResolver(cfg, nil)
			if err := resolver.RequireConfigured(providerName); err != nil {
				return err
			}

			registry := providers.NewRegistry()
			registry.RegisterFactory("anthropic", providers.AnthropicFactory)
			registry.RegisterFactory("openai", providers.OpenAIFactory)
			registry.RegisterFactory("azure", providers.AzureFactory)

			client := agent.NewClient(registry, agent.NewToolRegistry(), slog.Default())

			opts := models.AgentOptions{
				Provider:       providerName,
				ProviderConfig: resolver.ProviderMap(providerName),
				Model:          model,
				MaxTurns:       maxTurns,
				Stream:         stream,
				SystemPrompt:   systemPrompt,
			}.WithDefaults()

			ctx := cmd.Context()
			if err := client.Connect(ctx, opts); err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer client.Disconnect()

			ch, err := client.Query(ctx, args[0])
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			out := cmd.OutOrStdout()
			for msg := range ch {
				switch {
				case msg.Err != nil:
					return msg.Err
				case msg.Message != nil:
					if text := msg.Message.Text(); text != "" {
						fmt.Fprintln(out, text)
					}
				case msg.Result != nil:
					fmt.Fprintf(out, "--- done (turns=%d, error=%v) ---\n", msg.Result.NumTurns, msg.Result.IsError)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "anthropic", "provider name (anthropic, openai, azure)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().IntVar(&maxTurns, "max-turns", models.DefaultMaxTurns, "maximum agentic loop turns")
	cmd.Flags().BoolVar(&stream, "stream", false, "use the provider's streaming call (only the final text is printed)")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt")
	return cmd
}
