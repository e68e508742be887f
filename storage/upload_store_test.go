package storage

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/sha3"

	"videonotes/core"
)

func TestSaveIsContentAddressed(t *testing.T) {
	store := NewUploadStore(t.TempDir())
	content := []byte("not actually a video, but bytes are bytes")

	path1, err := store.Save(bytes.NewReader(content), "video/mp4")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	path2, err := store.Save(bytes.NewReader(content), "video/mp4")
	if err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}
	if path1 != path2 {
		t.Errorf("identical bytes produced different paths: %s vs %s", path1, path2)
	}

	sum := sha3.Sum256(content)
	wantName := hex.EncodeToString(sum[:]) + ".video.mp4"
	if filepath.Base(path1) != wantName {
		t.Errorf("expected file name %s, got %s", wantName, filepath.Base(path1))
	}

	saved, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if !bytes.Equal(saved, content) {
		t.Error("saved bytes differ from uploaded bytes")
	}
}

func TestDifferentBytesDifferentPaths(t *testing.T) {
	store := NewUploadStore(t.TempDir())
	path1, err := store.Save(bytes.NewReader([]byte("first")), "video/mp4")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	path2, err := store.Save(bytes.NewReader([]byte("second")), "video/mp4")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if path1 == path2 {
		t.Error("different bytes mapped to the same path")
	}
}

func TestResultRoundTrip(t *testing.T) {
	store := NewUploadStore(t.TempDir())
	videoPath, err := store.Save(bytes.NewReader([]byte("clip")), "video/webm")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if store.HasResult(videoPath) {
		t.Fatal("HasResult() true before any result was saved")
	}

	segments := []*core.Segment{
		{Start: 0, End: 2.5, Text: "hello", Frames: []*core.Frame{
			{Path: "frame_0000.jpg", FrameNumber: 0, Text: "Intro", Description: "A logo"},
		}},
		{Start: 2.5, End: 4, Text: "world", Frames: []*core.Frame{}},
	}
	if err := store.SaveResult(videoPath, segments); err != nil {
		t.Fatalf("SaveResult() failed: %v", err)
	}
	if !store.HasResult(videoPath) {
		t.Fatal("HasResult() false after SaveResult()")
	}
	if store.ResultPath(videoPath) != videoPath+".txt" {
		t.Errorf("unexpected result path %s", store.ResultPath(videoPath))
	}

	loaded, err := store.LoadResult(videoPath)
	if err != nil {
		t.Fatalf("LoadResult() failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(loaded))
	}
	if loaded[0].Text != "hello" || loaded[0].End != 2.5 {
		t.Errorf("segment 0 corrupted: %+v", loaded[0])
	}
	if len(loaded[0].Frames) != 1 || loaded[0].Frames[0].Description != "A logo" {
		t.Errorf("segment 0 frames corrupted: %+v", loaded[0].Frames)
	}
	if loaded[1].Frames == nil || len(loaded[1].Frames) != 0 {
		t.Errorf("expected empty frame list for segment 1, got %+v", loaded[1].Frames)
	}
}

func TestSaveResultLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewUploadStore(dir)
	videoPath, err := store.Save(bytes.NewReader([]byte("clip")), "video/mp4")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := store.SaveResult(videoPath, []*core.Segment{{Text: "x"}}); err != nil {
		t.Fatalf("SaveResult() failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 { // video + artifact
		for _, e := range entries {
			t.Logf("entry: %s", e.Name())
		}
		t.Errorf("expected 2 entries in store dir, got %d", len(entries))
	}
}
