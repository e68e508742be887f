package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videonotes/config"
	"videonotes/core"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]*core.Segment, error)
}

// extractAudio demuxes the audio track into {videoPath}.wav. A non-zero
// ffmpeg exit aborts the pipeline.
func extractAudio(ctx context.Context, videoPath string) (string, error) {
	audioPath := videoPath + ".wav"
	if err := runTool(ctx, "ffmpeg", "-i", videoPath, "-q:a", "0", "-map", "a", audioPath, "-y"); err != nil {
		return "", err
	}
	return audioPath, nil
}

// AudioStage turns the video's audio track into timestamped segments. It
// reports exactly two milestones; the two sub-steps are not finely
// divisible, so there is no fractional progress here.
type AudioStage struct {
	Transcriber Transcriber

	extract func(ctx context.Context, videoPath string) (string, error)
}

func NewAudioStage(tr Transcriber) *AudioStage {
	return &AudioStage{Transcriber: tr, extract: extractAudio}
}

func (s *AudioStage) Run(ctx context.Context, videoPath string, report core.Reporter) ([]*core.Segment, error) {
	audioPath, err := s.extract(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	report.Milestone(core.GlyphDone + " audio extracted")

	segments, err := s.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	report.Milestone(core.GlyphDone + " audio transcribed")
	return segments, nil
}

// WhisperAPITranscriber sends the audio to the hosted Whisper endpoint and
// keeps the per-segment timestamps from the verbose response.
type WhisperAPITranscriber struct {
	cli   *openai.Client
	model string
}

func (w WhisperAPITranscriber) Transcribe(ctx context.Context, audioPath string) ([]*core.Segment, error) {
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: transcription: %v", core.ErrAPI, err)
	}
	if len(resp.Segments) == 0 {
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: empty transcription result", core.ErrAPI)
		}
		dur, _ := probeDuration(ctx, audioPath)
		return []*core.Segment{{Start: 0, End: dur, Text: text}}, nil
	}
	segments := make([]*core.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, &core.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return segments, nil
}

// LocalWhisperTranscriber shells out to a local Whisper install through a
// generated helper script.
type LocalWhisperTranscriber struct {
	model string
}

const whisperScript = `#!/usr/bin/env python3
import json
import sys
import whisper

model = whisper.load_model(sys.argv[2] if len(sys.argv) > 2 else "base")
result = model.transcribe(sys.argv[1])
segments = [{"start": s["start"], "end": s["end"], "text": s["text"].strip()}
            for s in result.get("segments", [])]
print(json.dumps(segments, ensure_ascii=False))
`

func (l LocalWhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]*core.Segment, error) {
	scriptPath := filepath.Join(os.TempDir(), "whisper_transcribe.py")
	if err := os.WriteFile(scriptPath, []byte(whisperScript), 0644); err != nil {
		return nil, fmt.Errorf("%w: write whisper script: %v", core.ErrIO, err)
	}
	defer os.Remove(scriptPath)

	model := l.model
	if model == "" {
		model = "base"
	}
	out, err := runToolOutput(ctx, "python3", scriptPath, audioPath, model)
	if err != nil {
		return nil, fmt.Errorf("%w: local whisper: %v", core.ErrModel, err)
	}
	var segments []*core.Segment
	if err := json.Unmarshal(out, &segments); err != nil {
		return nil, fmt.Errorf("%w: parse whisper output: %v", core.ErrModel, err)
	}
	return segments, nil
}

// MockTranscriber emits placeholder segments sized from the audio duration.
// Useful offline and in tests.
type MockTranscriber struct{}

func (m MockTranscriber) Transcribe(ctx context.Context, audioPath string) ([]*core.Segment, error) {
	dur, err := probeDuration(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	const segLen = 15.0
	var segments []*core.Segment
	for start := 0.0; start < dur; start += segLen {
		end := start + segLen
		if end > dur {
			end = dur
		}
		segments = append(segments, &core.Segment{
			Start: start,
			End:   end,
			Text:  fmt.Sprintf("Placeholder transcript from %.0fs to %.0fs", start, end),
		})
	}
	return segments, nil
}

// PickTranscriber selects the provider from the ASR environment variable:
// "mock", "api", or the default local Whisper.
func PickTranscriber() Transcriber {
	asr := strings.ToLower(strings.TrimSpace(os.Getenv("ASR")))

	if asr == "mock" {
		return MockTranscriber{}
	}
	if asr == "api" {
		cfg, err := config.LoadConfig()
		if err != nil || !cfg.HasValidAPI() {
			log.Printf("Warning: API configuration not found for hosted Whisper, using local Whisper")
			return LocalWhisperTranscriber{}
		}
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return WhisperAPITranscriber{cli: openai.NewClientWithConfig(clientConfig), model: cfg.WhisperModel}
	}
	return LocalWhisperTranscriber{}
}
