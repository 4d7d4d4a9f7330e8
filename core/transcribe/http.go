package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"audioportal/logger"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("transcription service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("transcription service returned status %d: %s", e.StatusCode, e.Message)
}

// HTTPTranscriber posts audio as multipart/form-data (field "file") and
// expects {"transcription": "..."} back. Failures carry {"error": "..."}.
type HTTPTranscriber struct {
	Endpoint   string
	HTTPClient *http.Client
}

func NewHTTPTranscriber(endpoint string, timeout time.Duration) *HTTPTranscriber {
	return &HTTPTranscriber{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type transcriptionResponse struct {
	Transcription *string `json:"transcription"`
	Error         string  `json:"error"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := t.HTTPClient.Do(req)
	latency := time.Since(startTime)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	logger.Debug("Transcription service responded",
		logger.String("filename", filename),
		logger.Int("status", resp.StatusCode),
		logger.Duration("latency", latency))

	var parsed transcriptionResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Error
		if decodeErr != nil || msg == "" {
			msg = string(bytes.TrimSpace(respBody))
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode transcription response: %w", decodeErr)
	}
	if parsed.Transcription == nil {
		return "", fmt.Errorf("transcription response has no transcription field")
	}
	return *parsed.Transcription, nil
}
