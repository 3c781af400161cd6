package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/tubelens/tubelens/internal/models"
	"github.com/tubelens/tubelens/internal/rotation"
	"github.com/tubelens/tubelens/internal/usage"
)

// defaultOpenAIBaseURL is the OpenAI API endpoint root.
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// centsPerUnit fixes the unit scale: one quota unit equals one cent.
const centsPerUnit = 100

// OpenAICostConfig holds the cost-estimation knobs for OpenAI calls. The
// per-token rate is an approximation of blended input/output pricing, not a
// billing-grade figure; the fallback covers responses without usage metadata.
type OpenAICostConfig struct {
	Model           string  `yaml:"model"`
	CostPer1KTokens float64 `yaml:"cost-per-1k-tokens-usd"`
	FallbackCall    float64 `yaml:"fallback-cost-usd"`
}

// DefaultOpenAICostConfig returns the stock cost configuration.
func DefaultOpenAICostConfig() OpenAICostConfig {
	return OpenAICostConfig{
		Model:           "gpt-4o-mini",
		CostPer1KTokens: 0.002,
		FallbackCall:    0.02,
	}
}

// OpenAIGateway is the sole path to the OpenAI completion API.
type OpenAIGateway struct {
	gateway

	baseURL    string
	cost       OpenAICostConfig
	httpClient *http.Client
}

// NewOpenAIGateway constructs an OpenAI gateway. Zero-valued cost fields fall
// back to the defaults; baseURL overrides the production endpoint when
// non-empty.
func NewOpenAIGateway(selector *rotation.Selector, recorder *usage.Recorder, baseURL string, cost OpenAICostConfig) *OpenAIGateway {
	defaults := DefaultOpenAICostConfig()
	if strings.TrimSpace(cost.Model) == "" {
		cost.Model = defaults.Model
	}
	if cost.CostPer1KTokens <= 0 {
		cost.CostPer1KTokens = defaults.CostPer1KTokens
	}
	if cost.FallbackCall <= 0 {
		cost.FallbackCall = defaults.FallbackCall
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIGateway{
		gateway:    newGateway(models.ProviderOpenAI, selector, recorder),
		baseURL:    strings.TrimRight(baseURL, "/"),
		cost:       cost,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// OptimizeTitle generates an improved title for a video.
func (g *OpenAIGateway) OptimizeTitle(ctx context.Context, ownerID uint64, title, description string) (string, error) {
	prompt := fmt.Sprintf(
		"Rewrite this YouTube video title to maximize click-through while staying accurate. Reply with the title only.\n\nTitle: %s\nDescription: %s",
		title, description,
	)
	return g.complete(ctx, ownerID, "optimize.title", prompt)
}

// OptimizeDescription generates an improved description for a video.
func (g *OpenAIGateway) OptimizeDescription(ctx context.Context, ownerID uint64, title, description string) (string, error) {
	prompt := fmt.Sprintf(
		"Rewrite this YouTube video description for search visibility and viewer retention. Reply with the description only.\n\nTitle: %s\nDescription: %s",
		title, description,
	)
	return g.complete(ctx, ownerID, "optimize.description", prompt)
}

// SuggestTags generates tag suggestions for a video.
func (g *OpenAIGateway) SuggestTags(ctx context.Context, ownerID uint64, title, description string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Suggest up to 15 YouTube tags for this video. Reply with a comma-separated list only.\n\nTitle: %s\nDescription: %s",
		title, description,
	)
	raw, errComplete := g.complete(ctx, ownerID, "optimize.tags", prompt)
	if errComplete != nil {
		return nil, errComplete
	}

	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.Trim(strings.TrimSpace(part), "#\"'"); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// complete runs one chat completion and returns the first choice's content.
func (g *OpenAIGateway) complete(ctx context.Context, ownerID uint64, endpoint, prompt string) (string, error) {
	var out string
	errDo := g.do(ctx, ownerID, endpoint, func(ctx context.Context, secret string) callResult {
		content, totalTokens, res := g.chatCompletion(ctx, secret, endpoint, prompt)
		if res.err != nil {
			return res
		}
		out = content
		return callOK(g.estimateUnits(totalTokens))
	})
	if errDo != nil {
		return "", errDo
	}
	return out, nil
}

// estimateUnits converts the response's token usage into integer quota units,
// falling back to the per-call estimate when the provider omits usage data.
func (g *OpenAIGateway) estimateUnits(totalTokens int64) int64 {
	dollars := g.cost.FallbackCall
	if totalTokens > 0 {
		dollars = float64(totalTokens) / 1000 * g.cost.CostPer1KTokens
	}
	return dollarsToUnits(dollars)
}

// dollarsToUnits converts a dollar cost into quota units at one cent per
// unit, rounding up so a call is never under-charged.
func dollarsToUnits(dollars float64) int64 {
	if dollars <= 0 {
		return 0
	}
	return int64(math.Ceil(dollars * centsPerUnit))
}

// chatCompletionRequest is the outbound completion payload.
type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionResponse mirrors the completion payload fields we read.
type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// openaiErrorBody is the error envelope returned by the OpenAI API.
type openaiErrorBody struct {
	Error struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

// chatCompletion performs one POST to the completions endpoint with the
// secret as a bearer token.
func (g *OpenAIGateway) chatCompletion(ctx context.Context, secret, endpoint, prompt string) (string, int64, callResult) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, errMarshal := json.Marshal(chatCompletionRequest{
		Model: g.cost.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if errMarshal != nil {
		return "", 0, callFailed(&RemoteError{Provider: models.ProviderOpenAI, Endpoint: endpoint, Err: errMarshal})
	}

	req, errRequest := http.NewRequestWithContext(reqCtx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if errRequest != nil {
		return "", 0, callFailed(&RemoteError{Provider: models.ProviderOpenAI, Endpoint: endpoint, Err: errRequest})
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := g.httpClient.Do(req)
	if errDo != nil {
		return "", 0, callFailed(&RemoteError{Provider: models.ProviderOpenAI, Endpoint: endpoint, Err: errDo})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		remoteErr := &RemoteError{
			Provider:   models.ProviderOpenAI,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		if openaiRejection(resp.StatusCode, body) {
			remoteErr.Rejected = true
			return "", 0, callRejected(remoteErr)
		}
		return "", 0, callFailed(remoteErr)
	}

	var completion chatCompletionResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&completion); errDecode != nil {
		return "", 0, callFailed(&RemoteError{
			Provider: models.ProviderOpenAI,
			Endpoint: endpoint,
			Err:      fmt.Errorf("decode response: %w", errDecode),
		})
	}
	if len(completion.Choices) == 0 {
		return "", 0, callFailed(&RemoteError{
			Provider: models.ProviderOpenAI,
			Endpoint: endpoint,
			Err:      fmt.Errorf("empty completion"),
		})
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	return content, completion.Usage.TotalTokens, callResult{}
}

// openaiRejection reports whether the response means the credential itself is
// out of quota or not accepted, as opposed to a transient failure.
func openaiRejection(statusCode int, body []byte) bool {
	if statusCode == http.StatusUnauthorized {
		return true
	}
	if statusCode != http.StatusTooManyRequests {
		return false
	}
	var payload openaiErrorBody
	if errUnmarshal := json.Unmarshal(body, &payload); errUnmarshal != nil {
		return false
	}
	return payload.Error.Type == "insufficient_quota" || payload.Error.Code == "insufficient_quota"
}
