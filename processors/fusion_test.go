package processors

import (
	"testing"

	"videonotes/core"
)

func frameSet(numbers ...int) []*core.Frame {
	frames := make([]*core.Frame, 0, len(numbers))
	for _, n := range numbers {
		frames = append(frames, &core.Frame{FrameNumber: n})
	}
	return frames
}

func TestMatchFramesWithAudio(t *testing.T) {
	frames := frameSet(0, 1, 2, 3)
	segments := []*core.Segment{
		{Start: 0, End: 2},
		{Start: 3, End: 5},
	}

	MatchFramesWithAudio(frames, segments)

	if len(segments[0].Frames) != 3 {
		t.Fatalf("segment [0,2] got %d frames, expected 3", len(segments[0].Frames))
	}
	for i, want := range []int{0, 1, 2} {
		if segments[0].Frames[i].FrameNumber != want {
			t.Errorf("segment [0,2] frame %d has number %d, want %d", i, segments[0].Frames[i].FrameNumber, want)
		}
	}
	if len(segments[1].Frames) != 1 || segments[1].Frames[0].FrameNumber != 3 {
		t.Errorf("segment [3,5] frames = %+v", segments[1].Frames)
	}
}

func TestMatchFramesBoundaryRounding(t *testing.T) {
	// start=1.4 -> ceil 2, end=2.6 -> floor 2: only frame 2 matches
	frames := frameSet(0, 1, 2, 3)
	segments := []*core.Segment{{Start: 1.4, End: 2.6}}

	MatchFramesWithAudio(frames, segments)

	if len(segments[0].Frames) != 1 {
		t.Fatalf("got %d frames, expected exactly 1", len(segments[0].Frames))
	}
	if segments[0].Frames[0].FrameNumber != 2 {
		t.Errorf("matched frame %d, want 2", segments[0].Frames[0].FrameNumber)
	}
}

func TestMatchFramesNoMatchesYieldsEmptyList(t *testing.T) {
	segments := []*core.Segment{{Start: 30, End: 35}}
	MatchFramesWithAudio(frameSet(0, 1, 2), segments)

	if segments[0].Frames == nil {
		t.Fatal("frames should be an empty list, not nil")
	}
	if len(segments[0].Frames) != 0 {
		t.Errorf("expected no frames, got %d", len(segments[0].Frames))
	}
}

func TestMatchFramesSharesByReference(t *testing.T) {
	frames := frameSet(1)
	segments := []*core.Segment{
		{Start: 0, End: 2},
		{Start: 0.5, End: 1.5}, // overlapping in time
	}
	MatchFramesWithAudio(frames, segments)

	if len(segments[0].Frames) != 1 || len(segments[1].Frames) != 1 {
		t.Fatal("both overlapping segments should see the frame")
	}
	if segments[0].Frames[0] != segments[1].Frames[0] {
		t.Error("overlapping segments should share the same *Frame")
	}

	segments[0].Frames[0].Text = "written later"
	if segments[1].Frames[0].Text != "written later" {
		t.Error("mutation through one segment not visible through the other")
	}
}

func TestMatchFramesRespectsCandidateGaps(t *testing.T) {
	// retained frames may skip candidate numbers; the join window still
	// uses the candidate-based numbering
	frames := frameSet(0, 4, 9)
	segments := []*core.Segment{{Start: 3.2, End: 9.9}}
	MatchFramesWithAudio(frames, segments)

	if len(segments[0].Frames) != 2 {
		t.Fatalf("got %d frames, expected 2", len(segments[0].Frames))
	}
	if segments[0].Frames[0].FrameNumber != 4 || segments[0].Frames[1].FrameNumber != 9 {
		t.Errorf("matched frames %+v", segments[0].Frames)
	}
}
