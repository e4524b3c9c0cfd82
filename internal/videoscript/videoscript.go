// Package videoscript writes the shell script that assembles per-entry
// screenshots and narration audio into one video with ffmpeg. Running ffmpeg
// stays outside the pipeline; the script is an artifact handed to the
// operator.
package videoscript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const scriptName = "create_video.sh"
const concatListName = "segments.txt"

// Creator generates video assembly scripts into a videos directory.
type Creator struct {
	videosDir string
}

// NewCreator creates a script generator writing under videosDir.
func NewCreator(videosDir string) *Creator {
	return &Creator{videosDir: videosDir}
}

// Create writes the assembly script for one discussion. indices are the
// curated entry indices, in narration order; each index i must have i.png
// and i.wav in entriesDir.
func (c *Creator) Create(discussionID int, entriesDir string, indices []int) error {
	if len(indices) == 0 {
		return fmt.Errorf("discussion %d: no entries to assemble", discussionID)
	}

	videoDir := filepath.Join(c.videosDir, fmt.Sprintf("%d", discussionID))

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	script.WriteString("set -e\n")
	script.WriteString(fmt.Sprintf("mkdir -p %q\n", videoDir))

	// One still-image segment per entry, cut to the narration length.
	var concat strings.Builder
	for _, i := range indices {
		png := filepath.Join(entriesDir, fmt.Sprintf("%d.png", i))
		wav := filepath.Join(entriesDir, fmt.Sprintf("%d.wav", i))
		segment := filepath.Join(videoDir, fmt.Sprintf("segment_%d.mp4", i))

		script.WriteString(fmt.Sprintf(
			"ffmpeg -y -loop 1 -i %q -i %q -c:v libx264 -tune stillimage -pix_fmt yuv420p -vf scale=1080:1920 -c:a aac -shortest %q\n",
			png, wav, segment))

		concat.WriteString(fmt.Sprintf("file '%s'\n", segment))
	}

	concatPath := filepath.Join(videoDir, concatListName)
	finalPath := filepath.Join(videoDir, fmt.Sprintf("%d.mp4", discussionID))

	script.WriteString(fmt.Sprintf("ffmpeg -y -f concat -safe 0 -i %q -c copy %q\n", concatPath, finalPath))
	script.WriteString(fmt.Sprintf("echo \"video ready: %s\"\n", finalPath))

	if err := os.MkdirAll(videoDir, 0o755); err != nil {
		return fmt.Errorf("failed to create video directory: %w", err)
	}

	if err := os.WriteFile(concatPath, []byte(concat.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	scriptPath := filepath.Join(entriesDir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(script.String()), 0o755); err != nil {
		return fmt.Errorf("failed to write video script: %w", err)
	}

	logrus.Infof("Wrote video script for discussion %d to %s", discussionID, scriptPath)
	return nil
}
