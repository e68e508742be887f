package processors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"videonotes/config"
	"videonotes/core"
)

// Captioner describes what is visible on a frame. Load is idempotent: the
// first call prepares the model and reports a "loaded" milestone, later
// calls report the skipped variant.
type Captioner interface {
	Load(ctx context.Context) (string, error)
	Caption(ctx context.Context, imagePath string) (string, error)
}

// CaptionStage fills frame.Description in place. Captioning failures are
// fatal, unlike OCR.
func CaptionStage(ctx context.Context, frames []*core.Frame, c Captioner, report core.Reporter) error {
	msg, err := c.Load(ctx)
	if err != nil {
		return err
	}
	report.Milestone(msg)

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		description, err := c.Caption(ctx, frame.Path)
		if err != nil {
			return fmt.Errorf("%w: caption %s: %v", core.ErrModel, frame.Path, err)
		}
		frame.Description = strings.TrimSpace(description)
		report.Progress(float64(i+1) / float64(len(frames)))
	}
	report.Milestone(core.GlyphDone + " frames described")
	return nil
}

// LocalCaptioner shells out to a BLIP-style captioning model through a
// generated helper script.
type LocalCaptioner struct {
	ModelDir string
	MaxLen   int

	mu         sync.Mutex
	loaded     bool
	scriptPath string
}

const captionScript = `#!/usr/bin/env python3
import sys
from PIL import Image
from transformers import Blip2Processor, Blip2ForConditionalGeneration

model_dir, image_path, max_len = sys.argv[1], sys.argv[2], int(sys.argv[3])
processor = Blip2Processor.from_pretrained(model_dir)
model = Blip2ForConditionalGeneration.from_pretrained(model_dir)
image = Image.open(image_path).convert("RGB")
inputs = processor(image, return_tensors="pt")
output = model.generate(**inputs, max_length=max_len)
print(processor.decode(output[0], skip_special_tokens=True).strip())
`

func (c *LocalCaptioner) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return core.GlyphSkipped + " captioning model loaded", nil
	}
	if _, err := os.Stat(c.ModelDir); err != nil {
		return "", fmt.Errorf("%w: captioning model dir %s: %v", core.ErrModel, c.ModelDir, err)
	}
	scriptPath := filepath.Join(os.TempDir(), "caption_frame.py")
	if err := os.WriteFile(scriptPath, []byte(captionScript), 0644); err != nil {
		return "", fmt.Errorf("%w: write caption script: %v", core.ErrIO, err)
	}
	c.scriptPath = scriptPath
	c.loaded = true
	return core.GlyphDone + " captioning model loaded", nil
}

func (c *LocalCaptioner) Caption(ctx context.Context, imagePath string) (string, error) {
	out, err := runToolOutput(ctx, "python3", c.scriptPath, c.ModelDir, imagePath, strconv.Itoa(c.MaxLen))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// StubCaptioner fills a fixed placeholder per frame. Selected by the
// CAPTION_STUB environment variable to keep CI runs off the real model.
type StubCaptioner struct {
	mu     sync.Mutex
	loaded bool
}

const stubDescription = "A scene from the video"

func (c *StubCaptioner) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return core.GlyphSkipped + " captioning model loaded", nil
	}
	c.loaded = true
	return core.GlyphDone + " captioning model loaded", nil
}

func (c *StubCaptioner) Caption(ctx context.Context, imagePath string) (string, error) {
	return stubDescription, nil
}

// PickCaptioner honors the stub flag, otherwise wires the local model with
// configured directory and caption length bound.
func PickCaptioner() Captioner {
	if config.CaptionStub() {
		return &StubCaptioner{}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return &LocalCaptioner{ModelDir: "blip2_model", MaxLen: 50}
	}
	return &LocalCaptioner{ModelDir: cfg.CaptionModelDir, MaxLen: cfg.CaptionMaxLen}
}
