package llm

import (
	"context"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const DefaultOpenAIModel = "gpt-4.1"

func NewOpenAI(log *zap.Logger, openaiToken, openaiOrg, model, baseURL string) (Client, error) {
	opts := []openai.Option{
		openai.WithToken(openaiToken),
		openai.WithOrganization(openaiOrg),
		openai.WithModel(lo.If(model != "", model).Else(DefaultOpenAIModel)),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	return &openaiClient{
		log:    log,
		client: client,
	}, nil
}

type openaiClient struct {
	log    *zap.Logger
	client *openai.LLM
}

func (o *openaiClient) Generate(ctx context.Context, request GenerateRequest) (*GenerateResponse, error) {
	var contents []llms.MessageContent
	contents = append(contents, llms.MessageContent{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.TextContent{
				Text: request.Prompt,
			},
		},
	})
	var opts []llms.CallOption
	if _, model := ParseModel(request.Model); model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	o.log.Debug("openai generate", zap.String("model", request.Model), zap.Int("promptLength", len(request.Prompt)))
	res, err := o.client.GenerateContent(ctx, contents, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate content for prompt")
	}
	if len(res.Choices) == 0 {
		return nil, errors.Errorf("response does not contain any result")
	}

	return &GenerateResponse{
		Response: res.Choices[0].Content,
	}, nil
}
