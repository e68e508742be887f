package processors

import (
	"strings"

	"videonotes/core"
)

const promptPreamble = `I want a summary of a video for my notes. All information from the video should be summarized.

The information should be divided into sections and described in detail using bullet points.

The way the information was extracted from the video is inaccurate. Give more weight to the spoken text and use the
frame descriptions only as a support. Different languages may be used.

Context: You are a note-taking expert and want to summarize a video. For this purpose, the spoken text in the video
was transcribed and made available to you. A frame was extracted every second from the video. The frames were only
retained if there was a significant change (more than 20% change). An AI recognized the text on the frame. An AI then
 described what can be seen on the frame.

The video follows
------------------
`

// BuildPrompt renders the fused transcript into the summarization prompt.
// Pure: same segments in, same string out.
func BuildPrompt(segments []*core.Segment) string {
	var b strings.Builder
	b.WriteString(promptPreamble)

	for _, segment := range segments {
		if len(segment.Frames) > 0 {
			b.WriteString("\n\nThe video shows:\n")
			for _, frame := range segment.Frames {
				b.WriteString("* Text on screen: " + frame.Text + "\n")
				b.WriteString("* Description of scene: " + frame.Description + "\n")
			}
			b.WriteString("Spoken text: ")
		}
		b.WriteString(segment.Text)
	}
	return b.String()
}
