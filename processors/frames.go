package processors

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"videonotes/core"
)

// FrameSampler picks candidate frames at a fixed rate and retains only the
// ones that differ enough from the previously retained frame. The frame
// number keeps counting over all candidates, retained or not, so it tracks
// elapsed seconds at the default 1 Hz rate; temporal fusion depends on that.
type FrameSampler struct {
	SampleRateHz int
	ThresholdPct float64

	// seams for tests, default to ffprobe/ffmpeg
	probe   func(ctx context.Context, videoPath string) (fps, frameCount int, err error)
	extract func(ctx context.Context, videoPath, dir string, interval int) error
}

func NewFrameSampler(sampleRateHz int, thresholdPct float64) *FrameSampler {
	return &FrameSampler{
		SampleRateHz: sampleRateHz,
		ThresholdPct: thresholdPct,
		probe:        probeVideoStats,
		extract:      extractCandidates,
	}
}

// extractCandidates writes every interval-th raw frame to dir as
// cand_%05d.jpg, in source order.
func extractCandidates(ctx context.Context, videoPath, dir string, interval int) error {
	pattern := filepath.Join(dir, "cand_%05d.jpg")
	return runTool(ctx, "ffmpeg", "-i", videoPath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", interval),
		"-vsync", "vfr", "-q:v", "2", pattern, "-y")
}

func (s *FrameSampler) Run(ctx context.Context, videoPath string, report core.Reporter) ([]*core.Frame, error) {
	framesDir := videoPath + ".frames"
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create frames dir: %v", core.ErrIO, err)
	}

	fps, frameCount, err := s.probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	interval := fps / s.SampleRateHz
	if interval < 1 {
		interval = 1
	}
	duration := frameCount / fps
	if duration < 1 {
		duration = 1
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(videoPath), "cand-")
	if err != nil {
		return nil, fmt.Errorf("%w: create candidate dir: %v", core.ErrIO, err)
	}
	defer os.RemoveAll(tmpDir)

	if err := s.extract(ctx, videoPath, tmpDir, interval); err != nil {
		return nil, err
	}
	candidates, err := listCandidates(tmpDir)
	if err != nil {
		return nil, err
	}

	frames := make([]*core.Frame, 0, len(candidates))
	frameNumber := 0
	saved := 0
	var prev image.Image
	for _, candPath := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeImage(candPath)
		if err != nil {
			return nil, fmt.Errorf("%w: decode candidate %s: %v", core.ErrIO, candPath, err)
		}
		if prev == nil || imageDifference(prev, img) > s.ThresholdPct {
			dst := filepath.Join(framesDir, fmt.Sprintf("frame_%04d.jpg", frameNumber))
			if err := copyFile(candPath, dst); err != nil {
				return nil, fmt.Errorf("%w: save frame: %v", core.ErrIO, err)
			}
			frames = append(frames, &core.Frame{Path: dst, FrameNumber: frameNumber})
			saved++
			prev = img
		}
		// every candidate advances the counter, retained or not
		frameNumber++
		progress := float64(frameNumber) / float64(duration)
		if progress > 1 {
			progress = 1
		}
		report.Progress(progress)
	}
	report.Milestone(fmt.Sprintf("%s %d/%d frames extracted", core.GlyphDone, saved, frameNumber))
	return frames, nil
}

func listCandidates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read candidate dir: %v", core.ErrIO, err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jpg" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	// ffmpeg widens the %05d pattern past 99999 frames, so lexicographic
	// order no longer matches source order there.
	sort.Slice(paths, func(i, j int) bool {
		return candidateIndex(paths[i]) < candidateIndex(paths[j])
	})
	return paths, nil
}

// candidateIndex parses the sequence number out of a cand_NNNNN.jpg path.
func candidateIndex(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(strings.TrimPrefix(base, "cand_"), ".jpg")
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0
	}
	return n
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func copyFile(src, dst string) error {
	s, err := os.Open(src)
	if err != nil {
		return err
	}
	defer s.Close()
	d, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer d.Close()
	_, err = io.Copy(d, s)
	return err
}

// imageDifference returns the percentage of pixels whose per-channel
// absolute difference, taken to grayscale, is non-zero. Mismatched bounds
// count as fully different.
func imageDifference(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 100
	}
	total := ab.Dx() * ab.Dy()
	if total == 0 {
		return 0
	}
	nonZero := 0
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			dr := absDiff(ar>>8, br>>8)
			dg := absDiff(ag>>8, bg>>8)
			db := absDiff(abl>>8, bbl>>8)
			// BT.601 luma of the channel difference
			if (299*dr+587*dg+114*db)/1000 != 0 {
				nonZero++
			}
		}
	}
	return float64(nonZero) / float64(total) * 100
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
