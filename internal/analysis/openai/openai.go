// Package openai implements analysis.Analyzer on the OpenAI API. Pictures
// are sent to a vision model by presigned URL; audio is transcribed first
// and the transcript is analyzed as text.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/analysis"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/objstore"
)

// Client is the subset of *openai.Client used here.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// ErrEmptyResponse is returned when the model answers with nothing usable.
var ErrEmptyResponse = errors.New("empty model response")

// imageURLTTL bounds how long the model may fetch a picture.
const imageURLTTL = 5 * time.Minute

const systemPrompt = `You are a nutritionist. Identify the meal described by the user and estimate its nutrition.
Answer with a single JSON object and nothing else:
{"name": string, "icon": a single emoji, "foods": [{"name": string, "quantity": number, "unit": string,
"calories": number, "proteins": number, "carbohydrates": number, "fats": number}]}
Macros are grams for the given quantity. Use an empty foods array if no food can be identified.`

// Analyzer analyzes meals with a chat model.
type Analyzer struct {
	Client             Client
	Storage            objstore.Storage
	Model              string
	TranscriptionModel string
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// NewClient builds an API client; baseURL may be empty.
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Analyze dispatches on the input type.
func (a *Analyzer) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	var user openai.ChatCompletionMessage
	switch in.InputType {
	case models.InputPicture:
		url, err := a.Storage.PresignGet(ctx, in.FileKey, imageURLTTL)
		if err != nil {
			return analysis.Result{}, err
		}
		user = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Analyze the meal in this photo."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailLow}},
			},
		}
	case models.InputAudio:
		text, err := a.transcribe(ctx, in.FileKey)
		if err != nil {
			return analysis.Result{}, err
		}
		user = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Analyze the meal described in this voice note transcript:\n" + text,
		}
	default:
		return analysis.Result{}, fmt.Errorf("unsupported input type %q", in.InputType)
	}

	resp, err := a.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.Model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			user,
		},
	})
	if err != nil {
		return analysis.Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return analysis.Result{}, ErrEmptyResponse
	}
	return parseResult(resp.Choices[0].Message.Content)
}

func (a *Analyzer) transcribe(ctx context.Context, key string) (string, error) {
	body, err := a.Storage.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	resp, err := a.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    a.TranscriptionModel,
		FilePath: path.Base(key),
		Reader:   body,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", key, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// parseResult decodes the model's JSON, tolerating a fenced code block.
func parseResult(content string) (analysis.Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return analysis.Result{}, ErrEmptyResponse
	}
	var r analysis.Result
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return analysis.Result{}, fmt.Errorf("decode model response: %w", err)
	}
	return r, nil
}
