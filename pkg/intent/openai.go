package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
	"github.com/mantlegpt/mantlebot/pkg/logger"
)

const extractorPrompt = `You are a Mantle crypto wallet assistant that helps parse user intents and answer questions about Mantle.
For transactions, extract:
- Intent (must be exactly one of: "TRANSFER", "CHECK_BALANCE", "GET_ADDRESS", "INFO", "CONNECT", "CREATE", or "UNKNOWN")
- amount (must be a number only, e.g., "1" not "1 USDT")
- token (must be exactly "MNT" or "USDT")
- to (address)
Return JSON only with these exact keys: { "Intent", "amount", "token", "to", "info" }`

// OpenAIExtractor resolves intents with a chat model, falling back to the
// rule parser when the API call or its output cannot be used.
type OpenAIExtractor struct {
	client   openai.Client
	model    string
	fallback RuleParser
}

func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	return &OpenAIExtractor{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (e *OpenAIExtractor) Parse(ctx context.Context, text string) (Intent, error) {
	completion, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractorPrompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		logger.WarnCF("intent", "Model extraction failed, using rule fallback", map[string]any{
			"error": err.Error(),
		})
		return e.fallback.Parse(ctx, text)
	}
	if len(completion.Choices) == 0 {
		return e.fallback.Parse(ctx, text)
	}

	var raw struct {
		Intent string `json:"Intent"`
		Amount string `json:"amount"`
		Token  string `json:"token"`
		To     string `json:"to"`
		Info   string `json:"info"`
	}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &raw); err != nil {
		logger.WarnCF("intent", "Model returned malformed JSON, using rule fallback", map[string]any{
			"error": err.Error(),
		})
		return e.fallback.Parse(ctx, text)
	}

	out := Intent{
		Kind:  KindUnknown,
		To:    strings.TrimSpace(raw.To),
		Info:  raw.Info,
		Token: blockchain.AssetNative,
	}
	switch Kind(raw.Intent) {
	case KindTransfer, KindCheckBalance, KindGetAddress, KindConnect, KindCreate, KindInfo:
		out.Kind = Kind(raw.Intent)
	}
	if strings.EqualFold(raw.Token, "USDT") {
		out.Token = blockchain.AssetToken
	}

	// The model is told to return a bare number but occasionally leaves a
	// unit label attached anyway.
	if raw.Amount != "" {
		if cleaned, err := NormalizeAmount(raw.Amount); err == nil {
			out.Amount = cleaned
		}
	}

	return out, nil
}
