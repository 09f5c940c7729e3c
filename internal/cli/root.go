package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fmueller/batchscribe/internal/config"
	"github.com/fmueller/batchscribe/internal/logging"
	"github.com/fmueller/batchscribe/internal/source"
	"github.com/fmueller/batchscribe/internal/speech"
	"github.com/fmueller/batchscribe/internal/transcript"
	"github.com/fmueller/batchscribe/internal/version"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool

	sourceSpec    string
	dest          string
	baseURL       string
	model         string
	diarize       bool
	numSpeakers   int
	questionsFile string
	pollInterval  time.Duration
	maxAttempts   int

	logger *zap.Logger
	out    io.Writer

	resolveFn    func(ctx context.Context, specifier string) (source.Audio, error)
	executeFn    func(ctx context.Context, cfg config.Config, audio source.Audio, params speech.JobParameters) error
	transcribeFn func(ctx context.Context, cfg config.Config, audio source.Audio, params speech.SyncParameters) (transcript.Transcript, error)
	sleepFn      func(ctx context.Context, d time.Duration) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		dest:         config.DefaultDestinationDir,
		model:        "saaras:v2",
		diarize:      true,
		numSpeakers:  2,
		pollInterval: speech.DefaultPollInterval,
		maxAttempts:  speech.DefaultMaxAttempts,
		out:          os.Stdout,
	}
	app.resolveFn = app.resolveAudio
	app.executeFn = app.executeBatch
	app.transcribeFn = app.transcribeSync

	cmd := &cobra.Command{
		Use:           "batchscribe",
		Short:         "Submit audio to a speech-analytics service and collect the results",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runBatch(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindServiceFlags(cmd, app)
	bindJobFlags(cmd, app)
	cmd.Flags().DurationVar(&app.pollInterval, "poll-interval", app.pollInterval, "Fixed interval between job status checks")
	cmd.Flags().IntVar(&app.maxAttempts, "max-attempts", app.maxAttempts, "Give up after this many status checks")

	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.Flags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindServiceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.sourceSpec, "source", app.sourceSpec, "Audio source: http(s) URL or local file path (defaults to $"+config.EnvSource+")")
	cmd.Flags().StringVar(&app.baseURL, "base-url", app.baseURL, "Speech-analytics service base URL (defaults to $"+config.EnvBaseURL+")")
}

func bindJobFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.dest, "dest", app.dest, "Directory where job outputs are written")
	cmd.Flags().StringVar(&app.model, "model", app.model, "Speech-analytics model identifier")
	cmd.Flags().BoolVar(&app.diarize, "diarize", app.diarize, "Request speaker diarization")
	cmd.Flags().IntVar(&app.numSpeakers, "num-speakers", app.numSpeakers, "Expected number of speakers")
	cmd.Flags().StringVar(&app.questionsFile, "questions", app.questionsFile, "JSON file with analytic questions to attach to the job")
}

// buildConfig layers flag values over the environment-backed defaults.
func (a *appState) buildConfig() config.Config {
	cfg := config.FromEnv()
	if a.sourceSpec != "" {
		cfg.Source = a.sourceSpec
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.dest != "" {
		cfg.DestinationDir = a.dest
	}
	return cfg
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}
