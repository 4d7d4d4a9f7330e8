// Package transcribe sends stored audio to a speech-to-text backend.
package transcribe

import (
	"context"
	"fmt"

	"audioportal/config"
)

// Transcriber turns audio bytes into text. filename is passed along so the
// backend can detect the format from its extension.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// New picks the backend named by cfg.Transcriber.
func New(cfg *config.Config) (Transcriber, error) {
	switch cfg.Transcriber {
	case "", "http":
		return NewHTTPTranscriber(cfg.TranscriptionURL, cfg.TranscriptionTimeout), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("TRANSCRIBER=openai requires OPENAI_API_KEY")
		}
		return NewOpenAITranscriber(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.TranscriptionTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported TRANSCRIBER %q", cfg.Transcriber)
	}
}
