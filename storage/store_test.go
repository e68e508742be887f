package storage

import (
	"testing"

	"videonotes/core"
)

func TestMemoryStoreUpsertAndSearch(t *testing.T) {
	store := newMemoryVectorStore()

	segments := []*core.Segment{
		{Start: 0, End: 10, Text: "the lecture introduces neural networks", Frames: []*core.Frame{
			{Text: "Neural Networks 101", Description: "a slide with a diagram"},
		}},
		{Start: 10, End: 20, Text: "gradient descent minimizes the loss function"},
		{Start: 20, End: 30, Text: "questions from the audience"},
	}

	n := store.Upsert("video-a", segments)
	if n != 3 {
		t.Fatalf("Upsert() stored %d docs, expected 3", n)
	}

	hits := store.Search("video-a", "gradient descent loss", 2)
	if len(hits) == 0 {
		t.Fatal("Search() returned no hits")
	}
	if hits[0].Text != "gradient descent minimizes the loss function" {
		t.Errorf("best hit was %q", hits[0].Text)
	}
	if hits[0].Score <= 0 {
		t.Errorf("best hit has non-positive score %f", hits[0].Score)
	}

	// frame annotations participate in the embedding
	hits = store.Search("video-a", "diagram slide", 1)
	if len(hits) != 1 || hits[0].Start != 0 {
		t.Errorf("expected the annotated first segment, got %+v", hits)
	}
}

func TestMemoryStoreIsolatesVideos(t *testing.T) {
	store := newMemoryVectorStore()
	store.Upsert("video-a", []*core.Segment{{Text: "alpha beta"}})
	store.Upsert("video-b", []*core.Segment{{Text: "gamma delta"}})

	hits := store.Search("video-b", "alpha", 5)
	for _, h := range hits {
		if h.Text == "alpha beta" {
			t.Error("search leaked a segment from another video")
		}
	}
}

func TestEmbedTokensNormalized(t *testing.T) {
	v := embedTokens("repeat repeat unique")
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("embedding not L2 normalized, squared sum = %f", sum)
	}
	if cos := cosine(v, v); cos < 0.99 || cos > 1.01 {
		t.Errorf("self-cosine should be 1, got %f", cos)
	}
}
