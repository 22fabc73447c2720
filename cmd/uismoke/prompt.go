package main

import (
	"github.com/spf13/cobra"

	"github.com/integrail/uismoke/pkg/llm"
	"github.com/integrail/uismoke/pkg/smoke"
)

func newPromptCmd(root *rootOptions) *cobra.Command {
	var prompt, model string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Send a prompt to a hosted model and print the answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.settings.LLM
			switch {
			case cmd.Flags().Changed("model"):
				cfg.Model = model
			case cfg.Model == "" && !cmd.Flags().Changed("provider"):
				cfg.Model = model
			}
			client, err := llm.New(cfg, root.log)
			if err != nil {
				return smoke.NewUsageError(err)
			}
			return llm.RunPrompt(cmd.Context(), client, prompt, cfg.Model, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", llm.DefaultPrompt, "Prompt to send")
	cmd.Flags().StringVar(&model, "model", llm.DefaultModel, "Model as provider/name, e.g. openai/gpt-4.1 or ollama/llama3.1:8b")
	cmd.Flags().String("provider", llm.ProviderOpenAI, "Provider for models given without a provider prefix")
	cmd.Flags().String("llm-url", "", "Base URL of the model API (Ollama server or OpenAI compatible endpoint)")
	return cmd
}
