package main

import (
	"testing"
)

func TestParseSyntheticSpec(t *testing.T) {
	src, err := parseSyntheticSpec("640x480:10")
	if err != nil {
		t.Fatalf("parseSyntheticSpec failed: %v", err)
	}
	w, h := src.Bounds()
	if w != 640 || h != 480 {
		t.Errorf("Bounds = %dx%d, want 640x480", w, h)
	}
	if got := src.Duration(); got != 10 {
		t.Errorf("Duration = %v, want 10", got)
	}

	for _, bad := range []string{"", "640x480", "0x480:10", "640x480:-1", "abc"} {
		if _, err := parseSyntheticSpec(bad); err == nil {
			t.Errorf("Expected error for spec %q", bad)
		}
	}
}

func TestNewSourceFactory_SyntheticPrefix(t *testing.T) {
	factory := newSourceFactory(false)
	src, err := factory("synthetic:320x240:5")
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	w, h := src.Bounds()
	if w != 320 || h != 240 {
		t.Errorf("Bounds = %dx%d, want 320x240", w, h)
	}
}

func TestNewSourceFactory_DevModeFallback(t *testing.T) {
	factory := newSourceFactory(true)
	src, err := factory("does-not-exist.mp4")
	if err != nil {
		t.Fatalf("dev factory must not touch ffmpeg: %v", err)
	}
	if got := src.Duration(); got != 10 {
		t.Errorf("Dev synthetic duration = %v, want 10", got)
	}
}
