package processors

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"

	"videonotes/config"
	"videonotes/core"
	"videonotes/storage"
)

// Pipeline sequences the video-to-notes stages. One Run is a single
// logical thread of control; stages never overlap within an invocation.
// Runs on different videos are independent, the content-addressed cache
// makes their filesystem use safe.
type Pipeline struct {
	Uploads    *storage.UploadStore
	Sampler    *FrameSampler
	Recognizer *TextRecognizer

	// Nil providers are picked from the environment on every Run, so
	// ASR, CAPTION_STUB and credential changes take effect without a
	// restart.
	Audio      *AudioStage
	Captioner  Captioner
	Summarizer Summarizer

	Index storage.VectorStore // optional, best effort
}

// NewPipeline leaves the provider fields nil so each Run re-selects them
// from the environment; tests inject their own.
func NewPipeline(cfg *config.Config, uploads *storage.UploadStore, index storage.VectorStore) *Pipeline {
	return &Pipeline{
		Uploads:    uploads,
		Sampler:    NewFrameSampler(cfg.SampleRateHz, cfg.DiffThresholdPct),
		Recognizer: NewTextRecognizer(),
		Index:      index,
	}
}

// Run executes the full pipeline and returns the summary text. When a
// cache artifact already exists for the uploaded bytes, the expensive
// stages are skipped and the persisted segments feed summarization
// directly. The artifact is always persisted before summarization starts,
// so a summarizer crash never costs the transcription and sampling work.
func (p *Pipeline) Run(ctx context.Context, video io.Reader, mediaType string, report core.Reporter) (string, error) {
	videoPath, err := p.Uploads.Save(video, mediaType)
	if err != nil {
		return "", err
	}
	report.Milestone(core.GlyphDone + " file saved")

	audio := p.Audio
	if audio == nil {
		audio = NewAudioStage(PickTranscriber())
	}
	captioner := p.Captioner
	if captioner == nil {
		captioner = PickCaptioner()
	}
	summarizer := p.Summarizer
	if summarizer == nil {
		summarizer = PickSummarizer()
	}

	var segments []*core.Segment
	if !p.Uploads.HasResult(videoPath) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		segments, err = audio.Run(ctx, videoPath, report)
		if err != nil {
			return "", err
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		frames, err := p.Sampler.Run(ctx, videoPath, report)
		if err != nil {
			return "", err
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := p.Recognizer.Run(ctx, frames, report); err != nil {
			return "", err
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := CaptionStage(ctx, frames, captioner, report); err != nil {
			return "", err
		}

		MatchFramesWithAudio(frames, segments)

		if err := p.Uploads.SaveResult(videoPath, segments); err != nil {
			return "", err
		}
	} else {
		segments, err = p.Uploads.LoadResult(videoPath)
		if err != nil {
			return "", err
		}
		report.Milestone(core.GlyphSkipped + " notes loaded")
	}

	if p.Index != nil {
		if n := p.Index.Upsert(videoID(videoPath), segments); n > 0 {
			log.Printf("indexed %d segments for %s", n, videoID(videoPath))
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return summarizer.Summarize(ctx, BuildPrompt(segments), report)
}

// RunStream runs the pipeline in a goroutine and relays every progress
// event over an unbuffered channel, in emission order, terminated by one
// done or error event.
func (p *Pipeline) RunStream(ctx context.Context, video io.Reader, mediaType string) <-chan core.Event {
	events := make(chan core.Event)
	go func() {
		defer close(events)
		report := core.ChanReporter{Ctx: ctx, C: events}
		result, err := p.Run(ctx, video, mediaType, report)
		final := core.Event{Kind: core.EventDone, Result: result}
		if err != nil {
			final = core.Event{Kind: core.EventError, Message: err.Error()}
		}
		select {
		case events <- final:
		case <-ctx.Done():
		}
	}()
	return events
}

// videoID is the content-hash component of a stored video path, used as
// the index key.
func videoID(videoPath string) string {
	base := filepath.Base(videoPath)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}
