package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultModel  = "openai/gpt-4.1"
	DefaultPrompt = "I need to research the latest developments in AI agents for 2024.\n" +
		"Please help me:\n" +
		"1. Find recent news articles about AI agent breakthroughs\n" +
		"2. Search for academic papers on multi-agent systems\n" +
		"3. Look up startup companies working on AI agents\n" +
		"4. Find GitHub repositories with popular agent frameworks\n" +
		"5. Summarize the key trends and provide relevant links\n\n" +
		"Focus on developments from the past 6 months."
)

// RunPrompt sends one prompt and prints the answer to out.
func RunPrompt(ctx context.Context, client Client, prompt, model string, out io.Writer) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is empty")
	}
	res, err := client.Generate(ctx, GenerateRequest{Prompt: prompt, Model: model, MaxRetries: 3})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Result:\n%s\n", res.Response)
	return err
}
