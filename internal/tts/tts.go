// Package tts converts short reply text into MP3 files served back to the messaging platform.
//
// Each synthesis writes a uniquely named file into the audio directory and
// measures its playback duration, which the platform requires for audio
// messages.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tcolgate/mp3"
	"github.com/tripnavi/tripnavi/internal/util"
)

// speechClient is the subset of the GenAI client used for synthesis.
type speechClient interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Opts holds configuration options for the synthesizer.
type Opts struct {
	Dir string
}

// Option defines a functional option for synthesizer configuration.
type Option func(*Opts)

// WithDir sets the directory where audio files are written.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// Synthesizer turns text into stored MP3 files with measured duration.
type Synthesizer struct {
	client speechClient
	dir    string

	// measure is swappable in tests; defaults to MP3 frame decoding.
	measure func(data []byte) (time.Duration, error)
}

// NewSynthesizer creates a synthesizer writing into the configured
// directory, which is created if missing.
func NewSynthesizer(client speechClient, opts ...Option) (*Synthesizer, error) {
	cfg := Opts{Dir: "audio"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		slog.Error("tts.NewSynthesizer: failed to create audio directory", "error", err, "dir", cfg.Dir)
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	slog.Debug("tts.NewSynthesizer: synthesizer created", "dir", cfg.Dir)
	return &Synthesizer{client: client, dir: cfg.Dir, measure: mp3Duration}, nil
}

// Synthesize converts text to speech, stores the MP3 under a unique name
// derived from the user ID plus a random identifier, and returns the file
// name and playback duration in milliseconds. Identical text for the same
// user still yields a fresh file name on every call.
func (s *Synthesizer) Synthesize(ctx context.Context, userID, text string) (string, int64, error) {
	audio, err := s.client.Synthesize(ctx, text)
	if err != nil {
		return "", 0, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	duration, err := s.measure(audio)
	if err != nil {
		slog.Error("tts.Synthesize: failed to measure audio duration", "error", err, "userID", userID)
		return "", 0, fmt.Errorf("failed to measure audio duration: %w", err)
	}
	if duration <= 0 {
		return "", 0, fmt.Errorf("synthesized audio has no playable frames")
	}

	name := util.AudioFileName(userID)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, audio, 0644); err != nil {
		slog.Error("tts.Synthesize: failed to write audio file", "error", err, "path", path)
		return "", 0, fmt.Errorf("failed to write audio file: %w", err)
	}

	millis := duration.Milliseconds()
	slog.Info("tts.Synthesize: audio stored", "userID", userID, "file", name, "durationMs", millis)
	return name, millis, nil
}

// Dir returns the directory audio files are written to.
func (s *Synthesizer) Dir() string {
	return s.dir
}

// mp3Duration sums the duration of every MP3 frame in data.
func mp3Duration(data []byte) (time.Duration, error) {
	dec := mp3.NewDecoder(bytes.NewReader(data))
	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if err == io.EOF {
				return total, nil
			}
			return 0, fmt.Errorf("failed to decode MP3 frame: %w", err)
		}
		total += frame.Duration()
	}
}
