package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fmueller/batchscribe/internal/config"
	"github.com/fmueller/batchscribe/internal/source"
	"github.com/fmueller/batchscribe/internal/speech"
	"github.com/fmueller/batchscribe/internal/transcript"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	params := speech.SyncParameters{
		Model:           "saarika:v2",
		Tier:            "standard",
		WithDiarization: true,
		UtteranceSplit:  0.8,
	}
	var recordsFile string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-source>",
		Short: "Transcribe an audio file synchronously",
		Long:  "Transcribe an audio file in a single request, without the batch job lifecycle. Prints one line per utterance as \"[H:MM:SS -> H:MM:SS] SPEAKERnn: text\".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.buildConfig()
			cfg.Source = args[0]
			if cfg.APIKey == "" {
				return fmt.Errorf("API key is not set; export %s", config.EnvAPIKey)
			}

			resolveFn := app.resolveFn
			if resolveFn == nil {
				resolveFn = app.resolveAudio
			}
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeSync
			}

			audio, err := resolveFn(cmd.Context(), cfg.Source)
			if err != nil {
				return err
			}
			defer audio.Reader.Close()

			result, err := transcribeFn(cmd.Context(), cfg, audio, params)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), transcript.Render(result))
			fmt.Fprintf(cmd.OutOrStdout(), "Language: %s\n", result.LanguageCode)

			if recordsFile != "" {
				if err := writeRecords(recordsFile, result); err != nil {
					return err
				}
				app.log().Info("structured records written", zap.String("path", recordsFile))
			}
			return nil
		},
	}

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	cmd.Flags().StringVar(&app.baseURL, "base-url", app.baseURL, "Speech-analytics service base URL (defaults to $"+config.EnvBaseURL+")")
	cmd.Flags().StringVar(&params.Model, "model", params.Model, "Transcription model identifier")
	cmd.Flags().StringVar(&params.Tier, "tier", params.Tier, "Service tier")
	cmd.Flags().StringVar(&params.LanguageCode, "language", params.LanguageCode, "Force a language code; empty lets the service detect it")
	cmd.Flags().BoolVar(&params.WithDiarization, "diarize", params.WithDiarization, "Request speaker diarization")
	cmd.Flags().Float64Var(&params.UtteranceSplit, "utt-split", params.UtteranceSplit, "Pause length in seconds that starts a new utterance")
	cmd.Flags().StringVar(&recordsFile, "records", recordsFile, "Also write the utterances as JSON records to this file")

	return cmd
}

func (a *appState) transcribeSync(ctx context.Context, cfg config.Config, audio source.Audio, params speech.SyncParameters) (transcript.Transcript, error) {
	a.log().Info("transcribing...", zap.String("audio", audio.Name), zap.String("model", params.Model))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	result, err := speech.TranscribeSync(ctx, speech.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Logger:  a.log(),
	}, audio.Reader, audio.Name, params)
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return transcript.Transcript{}, err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

	return result, nil
}

func writeRecords(path string, result transcript.Transcript) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write records file: %w", err)
	}
	return nil
}
