package app

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
	"github.com/olakz-ops/export-chat-converter/internal/observe"
)

// ApplicationName names the config directory and keyring service.
const ApplicationName = "wachat"

// Options controls one conversion run.
type Options struct {
	ExportPath string
	From, To   *time.Time

	// SkipTranscription matches attachments without calling the transcriber.
	SkipTranscription bool

	Clean        bool
	CleanOptions CleanOptions
	Merge        bool

	// OnProgress is called after every finished transcription.
	OnProgress ProgressFunc
}

// Summary describes a finished run.
type Summary struct {
	ChatName  string
	Parsed    int
	Rendered  int
	Tasks     int
	Failed    int
	TotalCost float64
}

// ChatService orchestrates the chat processing pipeline.
type ChatService struct {
	loader   domain.ExportLoader
	parser   domain.ChatParser
	audio    *AudioProcessor
	renderer domain.ChatRenderer

	cleaner *Cleaner
	session *Session
	logger  zerolog.Logger
	metrics *observe.Metrics
	now     func() time.Time
}

// ServiceOption configures a ChatService.
type ServiceOption func(*ChatService)

// WithCleaner replaces the default cleaner.
func WithCleaner(c *Cleaner) ServiceOption {
	return func(s *ChatService) { s.cleaner = c }
}

// WithSession reports run events to sess.
func WithSession(sess *Session) ServiceOption {
	return func(s *ChatService) { s.session = sess }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l zerolog.Logger) ServiceOption {
	return func(s *ChatService) { s.logger = l }
}

// WithServiceMetrics sets the metric instruments.
func WithServiceMetrics(m *observe.Metrics) ServiceOption {
	return func(s *ChatService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock sets the time source for the document timestamp.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ChatService) { s.now = now }
}

func NewChatService(loader domain.ExportLoader, parser domain.ChatParser, audio *AudioProcessor, renderer domain.ChatRenderer, opts ...ServiceOption) *ChatService {
	s := &ChatService{
		loader:   loader,
		parser:   parser,
		audio:    audio,
		renderer: renderer,
		cleaner:  NewCleaner(),
		session:  NewSession(),
		logger:   zerolog.Nop(),
		metrics:  observe.DefaultMetrics(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Session returns the session the service reports to.
func (s *ChatService) Session() *Session {
	return s.session
}

// Process runs the full pipeline: load → parse → match → filter →
// transcribe → clean → merge → render.
func (s *ChatService) Process(ctx context.Context, opts Options, w io.Writer) (*Summary, error) {
	bundle, err := s.loader.Load(opts.ExportPath)
	if err != nil {
		return nil, fmt.Errorf("loading export: %w", err)
	}
	s.logger.Info().
		Str("chat", bundle.ChatName).
		Int("media", bundle.Media.Len()).
		Msg("export loaded")

	chat := &domain.Chat{Messages: s.parser.Parse(bundle.ChatText)}
	parsed := len(chat.Messages)
	s.metrics.MessagesParsed.Add(ctx, int64(parsed))
	s.session.SetParsed(chat.Messages)
	s.logger.Info().Int("messages", parsed).Msg("chat parsed")

	// Attachments are resolved on the whole chat; only messages inside the
	// time window are kept and transcribed.
	var keep func(domain.Message) bool
	if opts.From != nil || opts.To != nil {
		keep = domain.Within(opts.From, opts.To)
	}

	var res *Result
	if opts.SkipTranscription {
		res = s.audio.MatchWithin(ctx, chat.Messages, bundle.Media, keep)
	} else {
		res, err = s.audio.ProcessWithin(ctx, chat.Messages, bundle.Media, keep, func(completed, total int) {
			s.session.ReportProgress(completed, total)
			if opts.OnProgress != nil {
				opts.OnProgress(completed, total)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("transcribing audio: %w", err)
		}
	}
	if keep != nil {
		s.logger.Debug().Int("messages", len(res.Messages)).Msg("time filter applied")
	}
	if res.TotalCost > 0 {
		s.session.AddCost(res.TotalCost)
	}

	msgs := res.Messages
	if opts.Clean {
		msgs = s.cleaner.Clean(msgs, opts.CleanOptions)
	}
	if opts.Merge {
		msgs = Merge(msgs)
	}
	s.session.SetChat(msgs)

	doc := &domain.Document{
		Title:       chatTitle(bundle.ChatName),
		Messages:    msgs,
		TotalCost:   res.TotalCost,
		GeneratedAt: s.now(),
	}
	if err := s.renderer.Render(w, doc); err != nil {
		return nil, fmt.Errorf("rendering chat: %w", err)
	}

	return &Summary{
		ChatName:  bundle.ChatName,
		Parsed:    parsed,
		Rendered:  len(msgs),
		Tasks:     res.Tasks,
		Failed:    res.Failed,
		TotalCost: res.TotalCost,
	}, nil
}

// chatTitle derives a display title from the chat file name, e.g.
// "WhatsApp Chat - Family/_chat.txt" becomes "WhatsApp Chat - Family".
func chatTitle(name string) string {
	dir, file := path.Split(strings.ReplaceAll(name, "\\", "/"))
	title := strings.TrimSuffix(file, path.Ext(file))
	if title == "_chat" {
		title = ""
		if dir = strings.TrimSuffix(dir, "/"); dir != "" {
			title = path.Base(dir)
		}
	}
	return strings.TrimSpace(title)
}
