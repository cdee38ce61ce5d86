package openai

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/analysis"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
)

type fakeClient struct {
	chat       openai.ChatCompletionRequest
	audio      openai.AudioRequest
	audioBody  string
	answer     string
	transcript string
	err        error
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chat = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.answer == "" {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.answer}},
	}}, nil
}

func (f *fakeClient) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.audio = req
	b, _ := io.ReadAll(req.Reader)
	f.audioBody = string(b)
	return openai.AudioResponse{Text: f.transcript}, nil
}

type fakeStorage struct{}

func (fakeStorage) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "", errors.New("unused")
}

func (fakeStorage) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://uploads.example/" + key + "?sig=get", nil
}

func (fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewBufferString("audio:" + key)), nil
}

const answer = `{"name":"Breakfast","icon":"🍳","foods":[{"name":"Egg","quantity":2,"unit":"piece","calories":140,"proteins":12,"carbohydrates":1,"fats":10}]}`

func TestAnalyze_Picture(t *testing.T) {
	c := &fakeClient{answer: "```json\n" + answer + "\n```"}
	a := &Analyzer{Client: c, Storage: fakeStorage{}, Model: "gpt-4o-mini"}

	r, err := a.Analyze(context.Background(), analysis.Input{FileKey: "m.jpeg", InputType: models.InputPicture})
	require.NoError(t, err)
	assert.Equal(t, "Breakfast", r.Name)
	require.Len(t, r.Foods, 1)
	assert.Equal(t, 140.0, r.Foods[0].Calories)

	assert.Equal(t, "gpt-4o-mini", c.chat.Model)
	require.Len(t, c.chat.Messages, 2)
	parts := c.chat.Messages[1].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, "https://uploads.example/m.jpeg?sig=get", parts[1].ImageURL.URL)
}

func TestAnalyze_Audio(t *testing.T) {
	c := &fakeClient{answer: answer, transcript: "two fried eggs"}
	a := &Analyzer{Client: c, Storage: fakeStorage{}, Model: "gpt-4o-mini", TranscriptionModel: "whisper-1"}

	_, err := a.Analyze(context.Background(), analysis.Input{FileKey: "m.m4a", InputType: models.InputAudio})
	require.NoError(t, err)
	assert.Equal(t, "whisper-1", c.audio.Model)
	assert.Equal(t, "m.m4a", c.audio.FilePath)
	assert.Equal(t, "audio:m.m4a", c.audioBody)
	assert.Contains(t, c.chat.Messages[1].Content, "two fried eggs")
}

func TestAnalyze_Failures(t *testing.T) {
	tests := []struct {
		name string
		c    *fakeClient
		in   analysis.Input
	}{
		{"api error", &fakeClient{err: errors.New("rate limited")}, analysis.Input{FileKey: "m.jpeg", InputType: models.InputPicture}},
		{"no choices", &fakeClient{}, analysis.Input{FileKey: "m.jpeg", InputType: models.InputPicture}},
		{"not json", &fakeClient{answer: "I think it's pasta"}, analysis.Input{FileKey: "m.jpeg", InputType: models.InputPicture}},
		{"empty transcript", &fakeClient{answer: answer}, analysis.Input{FileKey: "m.m4a", InputType: models.InputAudio}},
		{"unknown type", &fakeClient{answer: answer}, analysis.Input{FileKey: "m.gif", InputType: "video"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &Analyzer{Client: tc.c, Storage: fakeStorage{}}
			_, err := a.Analyze(context.Background(), tc.in)
			assert.Error(t, err)
		})
	}
}
