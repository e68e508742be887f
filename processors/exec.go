package processors

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"videonotes/core"
)

// External tools get a hard deadline so a malformed input cannot block a
// pipeline run forever.
const toolTimeout = 10 * time.Minute

func runTool(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s %v: %v: %s", core.ErrTool, name, args, err, lastLine(stderr.String()))
	}
	return nil
}

func runToolOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", core.ErrTool, name, err, lastLine(stderr.String()))
	}
	return out.Bytes(), nil
}

func commandWithStdin(ctx context.Context, stdin string, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	return cmd
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := runToolOutput(ctx, "ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

// probeVideoStats reads the source frame rate and total frame count of the
// first video stream.
func probeVideoStats(ctx context.Context, path string) (fps int, frameCount int, err error) {
	out, err := runToolOutput(ctx, "ffprobe", "-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=r_frame_rate,nb_read_frames",
		"-of", "default=noprint_wrappers=1", path)
	if err != nil {
		return 0, 0, err
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "r_frame_rate":
			// reported as a fraction like 30000/1001
			num, den, ok := strings.Cut(value, "/")
			if !ok {
				den = "1"
				num = value
			}
			n, err1 := strconv.ParseFloat(num, 64)
			d, err2 := strconv.ParseFloat(den, 64)
			if err1 == nil && err2 == nil && d != 0 {
				fps = int(n / d)
			}
		case "nb_read_frames":
			if n, err := strconv.Atoi(value); err == nil {
				frameCount = n
			}
		}
	}
	if fps <= 0 || frameCount <= 0 {
		return 0, 0, fmt.Errorf("%w: ffprobe: no usable stream stats for %s", core.ErrTool, path)
	}
	return fps, frameCount, nil
}
