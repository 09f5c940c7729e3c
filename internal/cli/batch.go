package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fmueller/batchscribe/internal/config"
	"github.com/fmueller/batchscribe/internal/results"
	"github.com/fmueller/batchscribe/internal/source"
	"github.com/fmueller/batchscribe/internal/speech"
	"go.uber.org/zap"
)

// runBatch is the full batch workflow: resolve the audio source, then drive
// the job lifecycle through to materialized outputs. Every failure is fatal;
// nothing here retries beyond the poll loop's own cadence.
func (a *appState) runBatch(ctx context.Context) error {
	cfg := a.buildConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	resolveFn := a.resolveFn
	if resolveFn == nil {
		resolveFn = a.resolveAudio
	}

	executeFn := a.executeFn
	if executeFn == nil {
		executeFn = a.executeBatch
	}

	params, err := a.loadJobParameters()
	if err != nil {
		return err
	}

	audio, err := resolveFn(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer audio.Reader.Close()

	return executeFn(ctx, cfg, audio, params)
}

func (a *appState) executeBatch(ctx context.Context, cfg config.Config, audio source.Audio, params speech.JobParameters) error {
	client := speech.NewClient(speech.Options{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Logger:  a.log(),
	})

	if err := client.InitializeJob(ctx); err != nil {
		return err
	}
	if err := client.UploadFile(ctx, audio.Reader, audio.Name); err != nil {
		return err
	}
	if err := client.StartJob(ctx, params); err != nil {
		return err
	}

	a.log().Info("waiting for job completion",
		zap.String("job_id", client.JobID()),
		zap.Duration("poll_interval", a.pollInterval),
		zap.Int("max_attempts", a.maxAttempts))

	stopSpinner := startSpinner(a.progressEnabled(), "Waiting for job "+client.JobID())
	started := time.Now()
	err := speech.WaitForCompletion(ctx, client, speech.PollOptions{
		Interval:    a.pollInterval,
		MaxAttempts: a.maxAttempts,
		Logger:      a.log(),
		Sleep:       a.sleepFn,
	})
	stopSpinner()

	if err != nil {
		var remoteErr *speech.RemoteJobError
		if errors.As(err, &remoteErr) {
			return fmt.Errorf("job %s: %w", client.JobID(), remoteErr)
		}
		if errors.Is(err, speech.ErrPollTimeout) {
			return fmt.Errorf("job %s may still be running remotely, but this client gave up: %w", client.JobID(), err)
		}
		return err
	}
	a.log().Info("job finished", zap.String("job_id", client.JobID()), zap.Duration("elapsed", time.Since(started)))

	saved, err := results.Materialize(ctx, client, results.Options{
		DestinationDir: cfg.DestinationDir,
		NoProgress:     a.noProgress,
		Logger:         a.log(),
	})
	if err != nil {
		return err
	}

	for _, path := range saved {
		fmt.Fprintln(a.outWriter(), path)
	}
	return nil
}

func (a *appState) resolveAudio(ctx context.Context, specifier string) (source.Audio, error) {
	a.log().Info("resolving audio source", zap.String("source", specifier))
	return source.Resolve(ctx, specifier, nil)
}

func (a *appState) loadJobParameters() (speech.JobParameters, error) {
	params := speech.JobParameters{
		Model:           a.model,
		WithDiarization: a.diarize,
		NumSpeakers:     a.numSpeakers,
		Questions:       []speech.Question{},
	}

	if a.questionsFile == "" {
		return params, nil
	}

	data, err := os.ReadFile(a.questionsFile)
	if err != nil {
		return speech.JobParameters{}, fmt.Errorf("read questions file: %w", err)
	}
	if err := json.Unmarshal(data, &params.Questions); err != nil {
		return speech.JobParameters{}, fmt.Errorf("parse questions file %s: %w", a.questionsFile, err)
	}

	return params, nil
}
