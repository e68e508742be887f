package processors

import (
	"strings"
	"testing"

	"videonotes/core"
)

func TestBuildPromptWithFrames(t *testing.T) {
	segments := []*core.Segment{
		{
			Start: 0, End: 2, Text: "Hello",
			Frames: []*core.Frame{{Text: "Intro", Description: "A logo"}},
		},
	}
	prompt := BuildPrompt(segments)

	ocrLine := "* Text on screen: Intro"
	captionLine := "* Description of scene: A logo"
	for _, want := range []string{"The video shows:", ocrLine, captionLine, "Spoken text: Hello"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// OCR line, then caption line, then spoken text
	iOCR := strings.Index(prompt, ocrLine)
	iCap := strings.Index(prompt, captionLine)
	iSpoken := strings.Index(prompt, "Spoken text: Hello")
	if !(iOCR < iCap && iCap < iSpoken) {
		t.Errorf("prompt sections out of order: ocr=%d caption=%d spoken=%d", iOCR, iCap, iSpoken)
	}
}

func TestBuildPromptWithoutFramesOmitsHeader(t *testing.T) {
	segments := []*core.Segment{{Start: 0, End: 2, Text: "just talk", Frames: []*core.Frame{}}}
	prompt := BuildPrompt(segments)

	if strings.Contains(prompt, "The video shows:") {
		t.Error("frame header emitted for a segment without frames")
	}
	if !strings.Contains(prompt, "just talk") {
		t.Error("spoken text missing")
	}
}

func TestBuildPromptConcatenatesWithoutSeparators(t *testing.T) {
	segments := []*core.Segment{
		{Text: "first part,"},
		{Text: " second part"},
	}
	prompt := BuildPrompt(segments)
	if !strings.Contains(prompt, "first part, second part") {
		t.Error("segment texts should be concatenated without added separators")
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	segments := []*core.Segment{
		{Start: 0, End: 3, Text: "alpha", Frames: []*core.Frame{{Text: "x", Description: "y"}}},
		{Start: 3, End: 6, Text: "beta"},
	}
	if BuildPrompt(segments) != BuildPrompt(segments) {
		t.Error("BuildPrompt is not deterministic")
	}
}

func TestBuildPromptStartsWithPreamble(t *testing.T) {
	prompt := BuildPrompt(nil)
	if !strings.HasPrefix(prompt, "I want a summary of a video for my notes.") {
		t.Error("prompt does not start with the instructional preamble")
	}
	for _, want := range []string{"more weight to the spoken text", "inaccurate"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("preamble missing %q", want)
		}
	}
}
