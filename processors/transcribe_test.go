package processors

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"videonotes/core"
)

func TestAudioStageMilestones(t *testing.T) {
	stage := &AudioStage{
		Transcriber: &countingTranscriber{segments: []*core.Segment{
			{Start: 0, End: 3, Text: "hello"},
		}},
		extract: func(ctx context.Context, videoPath string) (string, error) {
			return videoPath + ".wav", nil
		},
	}

	report := &recordReporter{}
	segments, err := stage.Run(context.Background(), "video.mp4", report)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "hello" {
		t.Errorf("segments = %+v", segments)
	}

	// two milestones in stage order, no fractional progress in between
	want := []string{
		core.GlyphDone + " audio extracted",
		core.GlyphDone + " audio transcribed",
	}
	if !reflect.DeepEqual(report.milestones, want) {
		t.Errorf("milestones = %v, want %v", report.milestones, want)
	}
	if len(report.fractions) != 0 {
		t.Errorf("unexpected progress fractions: %v", report.fractions)
	}
}

func TestAudioStageExtractFailure(t *testing.T) {
	stage := &AudioStage{
		Transcriber: &countingTranscriber{},
		extract: func(ctx context.Context, videoPath string) (string, error) {
			return "", errors.New("no audio track")
		},
	}

	report := &recordReporter{}
	if _, err := stage.Run(context.Background(), "video.mp4", report); err == nil {
		t.Fatal("expected an error from a failed extraction")
	}
	if len(report.milestones) != 0 {
		t.Errorf("failed extraction reported milestones: %v", report.milestones)
	}
}
