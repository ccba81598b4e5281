package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/olakz-ops/export-chat-converter/internal/domain"
	"github.com/olakz-ops/export-chat-converter/internal/observe"
)

// DefaultBatchSize is the number of transcriptions in flight at once.
const DefaultBatchSize = 5

// errorPlaceholder replaces the text of a message whose transcription failed.
const errorPlaceholder = "[שגיאה בתמלול: %s]"

// MediaOmittedPolicy decides how "<Media omitted>" placeholders find a file.
type MediaOmittedPolicy string

const (
	// MediaOmittedSequence hands out audio files that no message references by
	// name, in upload order, to placeholders in message order.
	MediaOmittedSequence MediaOmittedPolicy = "sequence"
	// MediaOmittedSkip never transcribes placeholders.
	MediaOmittedSkip MediaOmittedPolicy = "skip"
)

// ParseMediaOmittedPolicy validates a policy name. Empty means the default.
func ParseMediaOmittedPolicy(s string) (MediaOmittedPolicy, error) {
	switch p := MediaOmittedPolicy(s); p {
	case "":
		return MediaOmittedSequence, nil
	case MediaOmittedSequence, MediaOmittedSkip:
		return p, nil
	}
	return "", fmt.Errorf("unknown media omitted policy %q (expected %q or %q)", s, MediaOmittedSequence, MediaOmittedSkip)
}

// ProgressFunc is called once per finished transcription, failures included.
type ProgressFunc func(completed, total int)

// Result is the outcome of audio processing.
type Result struct {
	Messages  []domain.Message
	TotalCost float64
	Tasks     int
	Failed    int
}

// task pairs a matched upload with the index of the message that referenced it.
type task struct {
	index    int
	file     domain.MediaFile
	filename string
}

// outcome is the staged result of one task, stored in the slot of its task.
type outcome struct {
	text string
	cost float64
	err  error
}

// AudioProcessor matches audio attachments to uploaded files and transcribes
// them in sequential batches.
type AudioProcessor struct {
	transcriber domain.Transcriber
	batchSize   int
	policy      MediaOmittedPolicy
	logger      zerolog.Logger
	metrics     *observe.Metrics
}

// AudioOption configures an AudioProcessor.
type AudioOption func(*AudioProcessor)

// WithBatchSize sets the number of concurrent transcriptions per batch.
// Values below 1 are ignored.
func WithBatchSize(n int) AudioOption {
	return func(p *AudioProcessor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMediaOmittedPolicy sets how unnamed attachments are resolved.
func WithMediaOmittedPolicy(policy MediaOmittedPolicy) AudioOption {
	return func(p *AudioProcessor) {
		if policy != "" {
			p.policy = policy
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) AudioOption {
	return func(p *AudioProcessor) { p.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) AudioOption {
	return func(p *AudioProcessor) {
		if m != nil {
			p.metrics = m
		}
	}
}

func NewAudioProcessor(t domain.Transcriber, opts ...AudioOption) *AudioProcessor {
	p := &AudioProcessor{
		transcriber: t,
		batchSize:   DefaultBatchSize,
		policy:      MediaOmittedSequence,
		logger:      zerolog.Nop(),
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Match runs attachment detection and file matching only. The returned
// messages carry AudioFile and OriginalAudio but are not transcribed.
func (p *AudioProcessor) Match(ctx context.Context, msgs []domain.Message, media *domain.MediaSet) *Result {
	return p.MatchWithin(ctx, msgs, media, nil)
}

// MatchWithin is Match restricted to the messages keep accepts. Files are
// still resolved against the whole of msgs, so the window does not change
// which file a "<Media omitted>" placeholder receives. A nil keep accepts
// every message.
func (p *AudioProcessor) MatchWithin(ctx context.Context, msgs []domain.Message, media *domain.MediaSet, keep func(domain.Message) bool) *Result {
	out, tasks := p.attach(ctx, msgs, media)
	out, tasks = window(out, tasks, keep)
	return &Result{Messages: out, Tasks: len(tasks)}
}

// Process matches attachments and transcribes every matched file. A failed
// transcription is recorded on its message and does not stop the others.
// Only a file whose bytes cannot be read, or cancellation of ctx, aborts
// the run.
func (p *AudioProcessor) Process(ctx context.Context, msgs []domain.Message, media *domain.MediaSet, onProgress ProgressFunc) (*Result, error) {
	return p.ProcessWithin(ctx, msgs, media, nil, onProgress)
}

// ProcessWithin is Process restricted to the messages keep accepts. Only
// their attachments are transcribed. See MatchWithin.
func (p *AudioProcessor) ProcessWithin(ctx context.Context, msgs []domain.Message, media *domain.MediaSet, keep func(domain.Message) bool, onProgress ProgressFunc) (*Result, error) {
	out, tasks := p.attach(ctx, msgs, media)
	out, tasks = window(out, tasks, keep)
	res := &Result{Messages: out, Tasks: len(tasks)}
	if len(tasks) == 0 {
		p.logger.Info().Msg("no audio files to transcribe")
		return res, nil
	}

	p.logger.Info().
		Int("tasks", len(tasks)).
		Int("messages", len(out)).
		Int("batch_size", p.batchSize).
		Msg("transcribing audio")

	outcomes, err := p.transcribeAll(ctx, tasks, onProgress)
	if err != nil {
		return nil, err
	}

	for i, t := range tasks {
		o := outcomes[i]
		msg := &res.Messages[t.index]
		if o.err != nil {
			msg.Text = fmt.Sprintf(errorPlaceholder, t.filename)
			msg.TranscriptionError = o.err.Error()
			res.Failed++
			continue
		}
		msg.Text = o.text
		msg.AudioFile = t.filename
		msg.OriginalAudio = t.file
		msg.TranscriptionCost = o.cost
		res.TotalCost += o.cost
	}

	p.logger.Info().
		Int("tasks", res.Tasks).
		Int("failed", res.Failed).
		Float64("cost", res.TotalCost).
		Msg("transcription finished")

	return res, nil
}

// attach is the synchronous first pass. It returns a copy of msgs with
// attachment fields filled and the transcription tasks in message order.
func (p *AudioProcessor) attach(ctx context.Context, msgs []domain.Message, media *domain.MediaSet) ([]domain.Message, []task) {
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)

	detected := make([]domain.Attachment, len(out))
	found := make([]bool, len(out))
	referenced := make(map[string]bool)
	for i := range out {
		detected[i], found[i] = domain.DetectAttachment(out[i].Text)
		if found[i] && !detected[i].MediaOmitted {
			referenced[detected[i].Filename] = true
		}
	}

	spare := p.spareAudio(media, referenced)

	var tasks []task
	for i := range out {
		if !found[i] {
			continue
		}
		att := detected[i]
		msg := &out[i]

		name := att.Filename
		if att.MediaOmitted {
			msg.AudioFile = domain.MediaOmittedPlaceholder
			if len(spare) == 0 {
				p.logger.Debug().Int("message", i).Msg("media omitted without a file to assign")
				p.countAttachment(ctx, false)
				continue
			}
			name, spare = spare[0], spare[1:]
		}
		msg.AudioFile = name

		file, ok := media.Get(name)
		if !ok {
			p.logger.Warn().Str("file", name).Int("message", i).Msg("referenced audio file is missing")
			p.countAttachment(ctx, false)
			continue
		}
		msg.OriginalAudio = file
		tasks = append(tasks, task{index: i, file: file, filename: name})
		p.countAttachment(ctx, true)
	}

	return out, tasks
}

// window drops the messages keep rejects, together with their tasks, and
// renumbers the remaining tasks.
func window(msgs []domain.Message, tasks []task, keep func(domain.Message) bool) ([]domain.Message, []task) {
	if keep == nil {
		return msgs, tasks
	}
	kept := make([]domain.Message, 0, len(msgs))
	moved := make([]int, len(msgs))
	for i, m := range msgs {
		moved[i] = -1
		if keep(m) {
			moved[i] = len(kept)
			kept = append(kept, m)
		}
	}
	var inside []task
	for _, t := range tasks {
		if j := moved[t.index]; j >= 0 {
			t.index = j
			inside = append(inside, t)
		}
	}
	return kept, inside
}

// spareAudio lists the audio uploads no message names, in upload order.
func (p *AudioProcessor) spareAudio(media *domain.MediaSet, referenced map[string]bool) []string {
	if p.policy != MediaOmittedSequence {
		return nil
	}
	var spare []string
	for _, name := range media.Names() {
		if domain.IsAudioName(name) && !referenced[name] {
			spare = append(spare, name)
		}
	}
	return spare
}

func (p *AudioProcessor) countAttachment(ctx context.Context, matched bool) {
	p.metrics.AttachmentsDetected.Add(ctx, 1, metric.WithAttributes(attribute.Bool("matched", matched)))
}

// transcribeAll runs tasks in batches of batchSize. Batch N+1 starts only
// after every task of batch N has finished. Each task writes its own slot.
func (p *AudioProcessor) transcribeAll(ctx context.Context, tasks []task, onProgress ProgressFunc) ([]outcome, error) {
	outcomes := make([]outcome, len(tasks))
	total := len(tasks)

	var (
		mu        sync.Mutex
		completed int
	)
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if onProgress != nil {
			onProgress(completed, total)
		}
	}

	for start := 0; start < total; start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+p.batchSize, total)

		// A plain group: one failure must not cancel its siblings.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				defer report()
				o, err := p.transcribe(ctx, tasks[i])
				if err != nil {
					return err
				}
				outcomes[i] = o
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		p.logger.Debug().Int("done", end).Int("total", total).Msg("batch finished")
	}

	return outcomes, nil
}

// transcribe runs one task. Unreadable media and cancellation of ctx are
// returned as errors; every other failure is staged in the outcome.
func (p *AudioProcessor) transcribe(ctx context.Context, t task) (outcome, error) {
	text, err := p.transcriber.Transcribe(ctx, t.file)
	if err != nil {
		if errors.Is(err, domain.ErrMediaUnreadable) {
			return outcome{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome{}, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return outcome{}, err
		}
		p.logger.Warn().Err(err).Str("file", t.filename).Msg("transcription failed")
		return outcome{err: err}, nil
	}

	cost := EstimateCost(t.file.Size())
	p.metrics.TranscriptionCost.Add(ctx, cost)
	p.logger.Debug().Str("file", t.filename).Float64("cost", cost).Msg("transcribed")
	return outcome{text: text, cost: cost}, nil
}
