package core

// Frame is a single retained video frame plus the annotations the
// recognition stages attach to it. Frames are shared by reference between
// the sampling output, both annotation passes and the fused segments, so
// they are always handled as *Frame.
type Frame struct {
	Path        string `json:"path"`
	FrameNumber int    `json:"frame_number"`
	Text        string `json:"text"`
	Description string `json:"description"`
}

// Segment is one timestamped piece of the transcript. Frames starts empty
// and is filled exactly once by temporal fusion.
type Segment struct {
	Start  float64  `json:"start"`
	End    float64  `json:"end"`
	Text   string   `json:"text"`
	Frames []*Frame `json:"frames"`
}

// Hit is a scored result from the vector store.
type Hit struct {
	Score   float64 `json:"score"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Summary string  `json:"summary"`
}

type QueryRequest struct {
	VideoID string `json:"video_id"`
	Query   string `json:"query"`
	TopK    int    `json:"top_k"`
}

type QueryResponse struct {
	VideoID string `json:"video_id"`
	Query   string `json:"query"`
	Hits    []Hit  `json:"hits"`
}
