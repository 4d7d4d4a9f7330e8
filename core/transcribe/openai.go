package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAITranscriber uses the OpenAI audio transcription endpoint (Whisper).
type OpenAITranscriber struct {
	Client *openai.Client
	Model  string
}

func NewOpenAITranscriber(apiKey, model string, timeout time.Duration) *OpenAITranscriber {
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	return NewOpenAITranscriberWithConfig(clientConfig, model)
}

// NewOpenAITranscriberWithConfig allows pointing the client at another base URL.
func NewOpenAITranscriberWithConfig(clientConfig openai.ClientConfig, model string) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{
		Client: openai.NewClientWithConfig(clientConfig),
		Model:  model,
	}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	resp, err := t.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.Model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}
	return resp.Text, nil
}
