package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/olakz-ops/export-chat-converter/internal/adapter/export"
	"github.com/olakz-ops/export-chat-converter/internal/adapter/parser"
	"github.com/olakz-ops/export-chat-converter/internal/adapter/renderer"
	"github.com/olakz-ops/export-chat-converter/internal/adapter/transcriber"
	"github.com/olakz-ops/export-chat-converter/internal/app"
	"github.com/olakz-ops/export-chat-converter/internal/config"
	"github.com/olakz-ops/export-chat-converter/internal/domain"
	"github.com/olakz-ops/export-chat-converter/internal/logging"
	"github.com/olakz-ops/export-chat-converter/internal/observe"
)

var (
	fromStr      string
	toStr        string
	output       string
	format       string
	clean        bool
	noTranscribe bool
	metricsFile  string
)

var rootCmd = &cobra.Command{
	Use:   "wachat <export>",
	Short: "Convert WhatsApp chat exports to a self-contained HTML page",
	Long: `wachat processes WhatsApp chat exports (a .zip file, an extracted folder
or the _chat.txt file itself) and converts them to a single HTML page with
the voice messages embedded. Voice messages are transcribed using the
OpenAI Whisper API. Text and markdown output are available as well.`,
	Args:          cobra.ExactArgs(1),
	RunE:          runRoot,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	f := rootCmd.Flags()
	f.StringVar(&fromStr, "from", "", `Start time filter (format: "DD.MM.YYYY", "DD.MM.YYYY HH:MM" or "D/M/YYYY")`)
	f.StringVar(&toStr, "to", "", `End time filter (same formats as --from)`)
	f.StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	f.StringVarP(&format, "format", "f", "html", `Output format: "html", "text" or "markdown"`)
	f.BoolVar(&clean, "clean", false, "Remove system and empty messages")
	f.BoolVar(&noTranscribe, "no-transcribe", false, "Match voice messages without transcribing them")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics for this run to a textfile")

	f.Bool("merge", false, "Merge consecutive messages from the same sender")
	f.String("language", "", `Language hint for transcription (default "he")`)
	f.String("model", "", `Transcription model (default "whisper-1")`)
	f.Int("batch-size", 0, "Concurrent transcriptions per batch (default 5)")
	f.String("media-omitted", "", `How "<Media omitted>" finds its file: "sequence" or "skip"`)
	f.String("log-level", "", `Log level (default "info")`)
	f.Bool("log-json", false, "Log as JSON even on a terminal")

	bindFlag(config.KeyMerge, "merge")
	bindFlag(config.KeyLanguage, "language")
	bindFlag(config.KeyModel, "model")
	bindFlag(config.KeyBatchSize, "batch-size")
	bindFlag(config.KeyMediaOmitted, "media-omitted")
	bindFlag(config.KeyLogLevel, "log-level")
	bindFlag(config.KeyLogJSON, "log-json")
}

// bindFlag lets a flag override the config key only when it was set.
func bindFlag(key, name string) {
	cobra.CheckErr(viper.BindPFlag(key, rootCmd.Flags().Lookup(name)))
}

func configDir() string {
	dir, err := config.Dir()
	cobra.CheckErr(err)
	return dir
}

func initConfig() {
	v := viper.GetViper()
	config.Setup(v, configDir())
	cobra.CheckErr(config.Read(v))
}

func runRoot(cmd *cobra.Command, args []string) error {
	exportPath := args[0]

	from, err := parseTime(fromStr)
	if err != nil {
		return fmt.Errorf("parsing --from: %w", err)
	}

	to, err := parseTime(toStr)
	if err != nil {
		return fmt.Errorf("parsing --to: %w", err)
	}

	// If --to is date-only, set to end of day
	if to != nil && !strings.Contains(toStr, " ") {
		endOfDay := to.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
		to = &endOfDay
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !noTranscribe {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		JSON:   cfg.Log.JSON,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if metricsFile != "" {
		tf, err := observe.InitTextfile(metricsFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := tf.Flush(context.Background()); err != nil {
				logger.Warn().Err(err).Str("path", metricsFile).Msg("writing metrics failed")
			}
		}()
	}

	r, err := newRenderer(format)
	if err != nil {
		return err
	}

	patterns, err := cfg.LoadPatterns()
	if err != nil {
		return err
	}

	metrics := observe.DefaultMetrics()

	t := transcriber.NewOpenAITranscriber(transcriber.Config{
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Model:    cfg.Transcription.Model,
		Language: cfg.Transcription.Language,
		Timeout:  cfg.Transcription.Timeout,
		Metrics:  metrics,
	})
	audio, err := newAudioProcessor(cfg, t, logger, metrics)
	if err != nil {
		return err
	}

	session := app.NewSession()
	defer session.Reset()
	watchProgress(session, cmd.ErrOrStderr(), logger)

	svc := app.NewChatService(&export.Loader{}, &parser.WhatsAppParser{}, audio, r,
		app.WithCleaner(app.NewCleaner(patterns...)),
		app.WithSession(session),
		app.WithServiceLogger(logger),
		app.WithServiceMetrics(metrics),
	)

	opts := app.Options{
		ExportPath:        exportPath,
		From:              from,
		To:                to,
		SkipTranscription: noTranscribe,
		Clean:             clean,
		CleanOptions: app.CleanOptions{
			RemoveSystemMessages: cfg.Cleanup.SystemMessages,
			RemoveEmpty:          cfg.Cleanup.RemoveEmpty,
		},
		Merge: cfg.Merge,
	}

	summary, err := process(ctx, svc, opts, output, cmd.OutOrStdout())
	if err != nil {
		if errors.Is(err, export.ErrNoChatFile) {
			return fmt.Errorf("%s: %w", exportPath, err)
		}
		return err
	}

	logger.Info().
		Str("chat", summary.ChatName).
		Int("messages", summary.Rendered).
		Int("voice_messages", summary.Tasks).
		Int("failed", summary.Failed).
		Str("cost", fmt.Sprintf("$%.4f", summary.TotalCost)).
		Msg("conversion finished")
	return nil
}

func newAudioProcessor(cfg *config.Config, t domain.Transcriber, logger zerolog.Logger, metrics *observe.Metrics) (*app.AudioProcessor, error) {
	policy, err := app.ParseMediaOmittedPolicy(cfg.MediaOmitted)
	if err != nil {
		return nil, err
	}
	return app.NewAudioProcessor(t,
		app.WithBatchSize(cfg.Transcription.BatchSize),
		app.WithMediaOmittedPolicy(policy),
		app.WithLogger(logger),
		app.WithMetrics(metrics),
	), nil
}

// process runs svc and writes to path, or to stdout when path is empty.
// A partially written file is removed on failure.
func process(ctx context.Context, svc *app.ChatService, opts app.Options, path string, stdout io.Writer) (*app.Summary, error) {
	if path == "" {
		return svc.Process(ctx, opts, stdout)
	}

	f, err := os.Create(path) //nolint:gosec // output path is chosen by the user
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	summary, err := svc.Process(ctx, opts, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing output file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return summary, nil
}

func newRenderer(format string) (domain.ChatRenderer, error) {
	switch strings.ToLower(format) {
	case "html":
		return &renderer.HTMLRenderer{}, nil
	case "text":
		return &renderer.TextRenderer{}, nil
	case "markdown", "md":
		return &renderer.TextRenderer{Markdown: true}, nil
	}
	return nil, fmt.Errorf("unknown format %q (expected html, text or markdown)", format)
}

// watchProgress reports transcription progress on a terminal and in the
// debug log otherwise.
func watchProgress(session *app.Session, w io.Writer, logger zerolog.Logger) {
	tty := logging.IsTerminal(w)
	session.Subscribe(app.EventProgress, func(payload any) {
		p := payload.(app.Progress)
		if tty {
			fmt.Fprintf(w, "\rTranscribing voice messages %d/%d", p.Completed, p.Total)
			if p.Completed == p.Total {
				fmt.Fprintln(w)
			}
			return
		}
		logger.Debug().Int("completed", p.Completed).Int("total", p.Total).Msg("transcription progress")
	})
	session.Subscribe(app.EventCostUpdated, func(payload any) {
		logger.Debug().Float64("total_cost", payload.(float64)).Msg("cost updated")
	})
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	formats := []string{
		"02.01.2006 15:04",
		"02.01.2006",
		"2/1/2006 15:04",
		"2/1/2006",
	}

	for _, f := range formats {
		t, err := time.Parse(f, s)
		if err == nil {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("unknown time format: %q (expected DD.MM.YYYY, DD.MM.YYYY HH:MM or D/M/YYYY)", s)
}
