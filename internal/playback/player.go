package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voxcall/voxcall/internal/audio"
)

// Player renders one decoded audio fragment and blocks until it finishes.
type Player interface {
	Play(ctx context.Context, data []byte, mime string) error
}

// DiscardPlayer drops audio after a short pause that stands in for playback
// time. It keeps the pipeline honest in environments with no audio device.
type DiscardPlayer struct {
	Delay time.Duration
}

func (p DiscardPlayer) Play(ctx context.Context, _ []byte, _ string) error {
	if p.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Delay):
		return nil
	}
}

// FilePlayer writes each fragment to a timestamped file under Dir so a
// session can be replayed with any local audio tool.
type FilePlayer struct {
	Dir string

	seq int
}

func (p *FilePlayer) Play(ctx context.Context, data []byte, mime string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("empty fragment")
	}
	p.seq++
	ext := audio.ExtensionForMIME(mime)
	if ext == "" && audio.LooksLikeMPEG(data) {
		ext = ".mp3"
	}
	if ext == "" {
		ext = ".bin"
	}
	name := fmt.Sprintf("fragment_%s_%04d%s", time.Now().UTC().Format("20060102T150405"), p.seq, ext)
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	return nil
}
