package processors

import (
	"context"

	"videonotes/core"
)

// TextRecognizer runs OCR over each retained frame and writes the raw
// result into the frame in place. OCR is the one stage that degrades
// instead of failing: an unreadable frame just gets an empty string.
type TextRecognizer struct {
	run func(ctx context.Context, imagePath string) (string, error)
}

func NewTextRecognizer() *TextRecognizer {
	return &TextRecognizer{run: tesseractOCR}
}

func tesseractOCR(ctx context.Context, imagePath string) (string, error) {
	out, err := runToolOutput(ctx, "tesseract", imagePath, "stdout")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *TextRecognizer) Run(ctx context.Context, frames []*core.Frame, report core.Reporter) error {
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := r.run(ctx, frame.Path)
		if err != nil {
			text = ""
		}
		frame.Text = text
		report.Progress(float64(i+1) / float64(len(frames)))
	}
	report.Milestone(core.GlyphDone + " text extracted from frames")
	return nil
}
