package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/fmueller/batchscribe/internal/transcript"
	"go.uber.org/zap"
)

// SyncParameters configures the synchronous pre-recorded transcription call.
type SyncParameters struct {
	Model           string
	Tier            string
	LanguageCode    string
	WithDiarization bool

	// UtteranceSplit is the pause length in seconds at which the service
	// starts a new utterance.
	UtteranceSplit float64
}

// TranscribeSync submits the audio in a single request and returns the
// complete transcript. Unlike the batch lifecycle there is no job to poll;
// the call blocks until the service has transcribed the whole recording.
func TranscribeSync(ctx context.Context, opts Options, audio io.Reader, name string, params SyncParameters) (transcript.Transcript, error) {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fields := []struct {
			name, value string
		}{
			{"model", params.Model},
			{"tier", params.Tier},
			{"language_code", params.LanguageCode},
			{"with_diarization", strconv.FormatBool(params.WithDiarization)},
			{"utt_split", strconv.FormatFloat(params.UtteranceSplit, 'f', -1, 64)},
		}
		for _, field := range fields {
			if field.value == "" {
				continue
			}
			if err := mw.WriteField(field.name, field.value); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, audio); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	endpoint := strings.TrimRight(opts.BaseURL, "/") + "/speech/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return transcript.Transcript{}, fmt.Errorf("transcribe request: %w", err)
	}
	req.Header.Set(subscriptionKeyHeader, opts.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return transcript.Transcript{}, fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		opts.Logger.Error("transcription rejected", zap.Int("status", resp.StatusCode), zap.String("body", readErrorBody(resp.Body)))
		return transcript.Transcript{}, fmt.Errorf("transcribe: unexpected status %d", resp.StatusCode)
	}

	var result transcript.Transcript
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return transcript.Transcript{}, fmt.Errorf("transcribe: decode response: %w", err)
	}
	if result.LanguageCode == "" {
		result.LanguageCode = transcript.DefaultLanguageCode
	}
	return result, nil
}
