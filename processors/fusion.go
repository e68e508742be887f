package processors

import (
	"math"

	"videonotes/core"
)

// MatchFramesWithAudio attaches each retained frame to every transcript
// segment whose whole-second window contains the frame number. Frames are
// shared by reference, so overlapping segments see the same *Frame. A
// segment with no frames in range gets an empty, non-nil list.
func MatchFramesWithAudio(frames []*core.Frame, segments []*core.Segment) []*core.Segment {
	for _, segment := range segments {
		lower := int(math.Ceil(segment.Start))
		upper := int(math.Floor(segment.End))

		segment.Frames = make([]*core.Frame, 0)
		for _, frame := range frames {
			if lower <= frame.FrameNumber && frame.FrameNumber <= upper {
				segment.Frames = append(segment.Frames, frame)
			}
		}
	}
	return segments
}
