package videoscript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	videosDir := t.TempDir()
	entriesDir := t.TempDir()

	creator := NewCreator(videosDir)
	require.NoError(t, creator.Create(42, entriesDir, []int{0, 2, 5}))

	script, err := os.ReadFile(filepath.Join(entriesDir, "create_video.sh"))
	require.NoError(t, err)

	for _, fragment := range []string{
		"#!/bin/sh",
		"0.png", "0.wav",
		"2.png", "2.wav",
		"5.png", "5.wav",
		"segment_0.mp4", "segment_2.mp4", "segment_5.mp4",
		"-f concat",
		filepath.Join(videosDir, "42", "42.mp4"),
	} {
		assert.Contains(t, string(script), fragment)
	}
	assert.NotContains(t, string(script), "1.png")

	concat, err := os.ReadFile(filepath.Join(videosDir, "42", "segments.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(concat), "segment_0.mp4")
	assert.Contains(t, string(concat), "segment_5.mp4")
}

func TestCreate_ScriptIsExecutable(t *testing.T) {
	entriesDir := t.TempDir()

	creator := NewCreator(t.TempDir())
	require.NoError(t, creator.Create(42, entriesDir, []int{0}))

	info, err := os.Stat(filepath.Join(entriesDir, "create_video.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100)
}

func TestCreate_NoEntries(t *testing.T) {
	creator := NewCreator(t.TempDir())

	assert.Error(t, creator.Create(42, t.TempDir(), nil))
}
