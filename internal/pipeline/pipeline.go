// Package pipeline sequences fetching, parsing, classification and
// linearization over a discussion ID range and hands the ordered entries to
// the media collaborators.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mikroblog/discussions/internal/config"
	"github.com/mikroblog/discussions/internal/fetcher"
	"github.com/mikroblog/discussions/internal/linearize"
	"github.com/mikroblog/discussions/internal/models"
	"github.com/mikroblog/discussions/internal/notifications"
	"github.com/mikroblog/discussions/internal/parser"
	"github.com/mikroblog/discussions/internal/quality"
	"github.com/mikroblog/discussions/internal/ranges"
	"github.com/mikroblog/discussions/internal/speech"
	"github.com/mikroblog/discussions/internal/storage"
	"github.com/mikroblog/discussions/internal/videoscript"
	"github.com/sirupsen/logrus"
)

const (
	keepFileName    = "keep.txt"
	lengthsFileName = "lengths.txt"
)

// Renderer captures an entry HTML file into a PNG. Satisfied by the
// screenshot package; mocked in tests.
type Renderer interface {
	CaptureFile(ctx context.Context, htmlPath, pngPath string) error
}

// Metrics holds the outcome of the most recent run, served by the watch-mode
// status endpoint.
type Metrics struct {
	LastRun         time.Time `json:"last_run"`
	LastRunDuration string    `json:"last_run_duration"`
	LastMode        string    `json:"last_mode"`
	Fetched         int       `json:"fetched"`
	Kept            int       `json:"kept"`
	ErrorCount      int       `json:"error_count"`
}

// Service is the pipeline orchestrator. All work is sequential: one
// discussion at a time, one entry at a time, matching the single-writer
// assumptions of the workplace directory.
type Service struct {
	config      *config.Config
	store       storage.Interface
	fetcher     *fetcher.Fetcher
	parser      *parser.Parser
	classifier  *quality.Classifier
	tracker     *ranges.Tracker
	notifier    notifications.Interface
	synthesizer speech.Synthesizer
	renderer    Renderer
	scripts     *videoscript.Creator

	mu      sync.RWMutex
	metrics Metrics
}

// NewService wires the pipeline together.
func NewService(cfg *config.Config, store storage.Interface, notifier notifications.Interface, synthesizer speech.Synthesizer, renderer Renderer) *Service {
	policy := fetcher.RetryPolicy{
		MaxAttempts: cfg.FetchMaxRetries,
		Delay:       cfg.FetchRetryDelay,
	}

	return &Service{
		config:      cfg,
		store:       store,
		fetcher:     fetcher.New(cfg.BaseURL, policy, cfg.FetchTimeout, store, parser.HasPagination),
		parser:      parser.New(store),
		classifier:  quality.NewClassifier(),
		tracker:     ranges.NewTracker(cfg.RangesFile),
		notifier:    notifier,
		synthesizer: synthesizer,
		renderer:    renderer,
		scripts:     videoscript.NewCreator(cfg.VideosDir),
	}
}

// Tracker exposes the range tracker for the watch scheduler and the status
// endpoint.
func (s *Service) Tracker() *ranges.Tracker {
	return s.tracker
}

// GetMetrics returns the last-run metrics as JSON.
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.Marshal(s.metrics)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Discover runs the first half of the pipeline over [idStart, idEnd):
// fetch, parse, classify, then write each kept discussion's ordered entry
// HTML files, screenshots and the keep list the operator curates before the
// produce run.
func (s *Service) Discover(ctx context.Context, idStart, idEnd int) error {
	return s.run(ctx, "discover", idStart, idEnd, s.discoverDiscussion)
}

// Produce runs the second half over the same range: re-derive the ordered
// entries, narrow them to the operator's keep list, synthesize narration
// audio and emit the video assembly script.
func (s *Service) Produce(ctx context.Context, idStart, idEnd int) error {
	return s.run(ctx, "produce", idStart, idEnd, s.produceDiscussion)
}

// run is the shared mode skeleton. Per-discussion failures are logged and
// skipped; the range is only committed to the tracker when every discussion
// has been carried to completion.
func (s *Service) run(ctx context.Context, mode string, idStart, idEnd int, handle func(context.Context, *models.Discussion, []linearize.Entry, string) error) error {
	if idStart >= idEnd {
		return fmt.Errorf("bad range [%d, %d)", idStart, idEnd)
	}

	start := time.Now()
	logrus.Infof("Starting %s run over %d-%d", mode, idStart, idEnd)

	if err := s.fetcher.FetchRange(ctx, idStart, idEnd); err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	discussions := s.parser.ReadRange(idStart, idEnd)
	s.classifier.Classify(discussions)

	summary := &models.RunSummary{
		Mode:      mode,
		IDStart:   idStart,
		IDEnd:     idEnd,
		Fetched:   len(discussions),
		ByQuality: make(map[string]int),
		StartedAt: start.UTC(),
	}

	errorCount := 0
	for _, d := range discussions {
		if d.Quality == models.DiscussionBad {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		entries := s.orderedEntries(d)
		folder := s.entriesFolder(d)

		if err := handle(ctx, d, entries, folder); err != nil {
			logrus.Errorf("Discussion %d: %s failed: %v", d.ID, mode, err)
			errorCount++
			continue
		}

		summary.Kept++
		summary.ByQuality[d.Quality.String()]++
	}

	if err := s.tracker.AddRange(idStart, idEnd); err != nil {
		return fmt.Errorf("failed to commit range: %w", err)
	}

	summary.Duration = time.Since(start)
	s.updateMetrics(mode, summary, errorCount)

	if err := s.notifier.SendRunSummary(summary); err != nil {
		logrus.Errorf("Failed to send run summary: %v", err)
	}

	logrus.Infof("Finished %s run over %d-%d in %v", mode, idStart, idEnd, summary.Duration)
	return nil
}

// orderedEntries produces the narration order for a discussion: quality
// filter, then the reply-aware linearization. Deterministic, so discover and
// produce agree on entry indices.
func (s *Service) orderedEntries(d *models.Discussion) []linearize.Entry {
	kept := linearize.FilterComments(d.Comments)
	return linearize.Linearize(d.Post, kept)
}

func (s *Service) entriesFolder(d *models.Discussion) string {
	return filepath.Join(s.config.EntriesDir, d.Quality.String(), strconv.Itoa(d.ID))
}

// discoverDiscussion writes the per-entry artifacts the operator curates:
// {i}.html, {i}.png, {i}.txt and the keep list preloaded with every index.
// A failed artifact is logged and skipped; it never fails the discussion.
func (s *Service) discoverDiscussion(ctx context.Context, d *models.Discussion, entries []linearize.Entry, folder string) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("failed to create entries folder: %w", err)
	}

	for i, entry := range entries {
		htmlPath := filepath.Join(folder, fmt.Sprintf("%d.html", i))
		if err := os.WriteFile(htmlPath, []byte(entry.Shared().HTML), 0o644); err != nil {
			logrus.Errorf("Discussion %d: failed to write entry %d HTML: %v", d.ID, i, err)
			continue
		}

		textPath := filepath.Join(folder, fmt.Sprintf("%d.txt", i))
		if err := os.WriteFile(textPath, []byte(entry.Shared().NarrationText), 0o644); err != nil {
			logrus.Errorf("Discussion %d: failed to write entry %d text: %v", d.ID, i, err)
		}

		if s.renderer != nil {
			pngPath := filepath.Join(folder, fmt.Sprintf("%d.png", i))
			if err := s.renderer.CaptureFile(ctx, htmlPath, pngPath); err != nil {
				logrus.Errorf("Discussion %d: failed to capture entry %d: %v", d.ID, i, err)
			}
		}
	}

	return s.writeKeepFile(folder, len(entries))
}

// writeKeepFile seeds the keep list with every entry index. The operator
// deletes lines for entries that should not make the video.
func (s *Service) writeKeepFile(folder string, count int) error {
	var sb strings.Builder
	for i := 0; i < count; i++ {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("\n")
	}

	path := filepath.Join(folder, keepFileName)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write keep file: %w", err)
	}
	return nil
}

// produceDiscussion synthesizes narration audio for the curated entries,
// records their durations and writes the video assembly script.
func (s *Service) produceDiscussion(ctx context.Context, d *models.Discussion, entries []linearize.Entry, folder string) error {
	wanted, err := s.readKeepFile(folder)
	if err != nil {
		return fmt.Errorf("no curated keep list: %w", err)
	}

	if s.synthesizer == nil {
		return fmt.Errorf("speech synthesis is not configured")
	}

	var indices []int
	var durations []float64

	for i, entry := range entries {
		if !wanted[i] {
			continue
		}

		shared := entry.Shared()
		wav, seconds, err := s.synthesizer.Synthesize(ctx, shared.NarrationText, shared.IsAuthorMale)
		if err != nil {
			return fmt.Errorf("entry %d: speech synthesis failed: %w", i, err)
		}

		wavPath := filepath.Join(folder, fmt.Sprintf("%d.wav", i))
		if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
			return fmt.Errorf("entry %d: failed to write audio: %w", i, err)
		}

		indices = append(indices, i)
		durations = append(durations, seconds)
	}

	if err := s.writeLengthsFile(folder, durations); err != nil {
		return err
	}

	return s.scripts.Create(d.ID, folder, indices)
}

// readKeepFile loads the operator's curated entry indices.
func (s *Service) readKeepFile(folder string) (map[int]bool, error) {
	data, err := os.ReadFile(filepath.Join(folder, keepFileName))
	if err != nil {
		return nil, err
	}

	wanted := make(map[int]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		index, err := strconv.Atoi(line)
		if err != nil {
			logrus.Errorf("Skipping malformed keep line %q: %v", line, err)
			continue
		}
		wanted[index] = true
	}

	return wanted, nil
}

// writeLengthsFile records per-entry audio durations, one per line in
// narration order, for the video assembly step.
func (s *Service) writeLengthsFile(folder string, durations []float64) error {
	var sb strings.Builder
	for _, d := range durations {
		sb.WriteString(strconv.FormatFloat(d, 'f', -1, 64))
		sb.WriteString("\n")
	}

	path := filepath.Join(folder, lengthsFileName)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write lengths file: %w", err)
	}
	return nil
}

// GenerateVideoScript rebuilds the assembly script for an already-produced
// entries folder from its keep list.
func (s *Service) GenerateVideoScript(discussionID int, entriesDir string) error {
	wanted, err := s.readKeepFile(entriesDir)
	if err != nil {
		return fmt.Errorf("no keep list in %s: %w", entriesDir, err)
	}

	indices := make([]int, 0, len(wanted))
	for i := range wanted {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	return s.scripts.Create(discussionID, entriesDir, indices)
}

// Redo regenerates the screenshot, and optionally the narration audio, for a
// single entry in an existing entries folder. Text and gender are recovered
// from the saved entry HTML.
func (s *Service) Redo(ctx context.Context, folder string, entryIndex int, redoAudio bool) error {
	htmlPath := filepath.Join(folder, fmt.Sprintf("%d.html", entryIndex))

	if s.renderer != nil {
		pngPath := filepath.Join(folder, fmt.Sprintf("%d.png", entryIndex))
		if err := s.renderer.CaptureFile(ctx, htmlPath, pngPath); err != nil {
			return fmt.Errorf("failed to recapture entry %d: %w", entryIndex, err)
		}
	}

	if !redoAudio {
		return nil
	}

	if s.synthesizer == nil {
		return fmt.Errorf("speech synthesis is not configured")
	}

	markup, err := os.ReadFile(htmlPath)
	if err != nil {
		return fmt.Errorf("failed to read entry HTML: %w", err)
	}

	text, isMale, err := parser.EntryProperties(string(markup))
	if err != nil {
		return err
	}

	wav, _, err := s.synthesizer.Synthesize(ctx, text, isMale)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	wavPath := filepath.Join(folder, fmt.Sprintf("%d.wav", entryIndex))
	if err := os.WriteFile(wavPath, wav, 0o644); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	return nil
}

// SpeechTest synthesizes the text in the speech directory's test file for
// voice tuning. The file's first line is 1 for the male voice, 0 for female;
// the rest is the text.
func (s *Service) SpeechTest(ctx context.Context) error {
	if s.synthesizer == nil {
		return fmt.Errorf("speech synthesis is not configured")
	}

	inPath := filepath.Join(s.config.SpeechDir, "test.txt")
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inPath, err)
	}

	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) < 2 {
		return fmt.Errorf("%s needs a gender line followed by text", inPath)
	}

	isMale := strings.TrimSpace(lines[0]) != "0"
	text := strings.TrimSpace(lines[1])

	wav, seconds, err := s.synthesizer.Synthesize(ctx, text, isMale)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}

	outPath := filepath.Join(s.config.SpeechDir, "test.wav")
	if err := os.WriteFile(outPath, wav, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	logrus.Infof("Synthesized %.1fs of audio to %s", seconds, outPath)
	return nil
}

func (s *Service) updateMetrics(mode string, summary *models.RunSummary, errorCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = Metrics{
		LastRun:         time.Now().UTC(),
		LastRunDuration: summary.Duration.String(),
		LastMode:        mode,
		Fetched:         summary.Fetched,
		Kept:            summary.Kept,
		ErrorCount:      errorCount,
	}
}
