// Package frame pulls a single still image out of a local video file.
//
// Decoding is delegated to the ffprobe and ffmpeg binaries: ffprobe reports
// the stream frame rate and ffmpeg seeks to one frame index and writes it as
// PNG on stdout.
package frame

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrNoFrameRate means the stream reports no usable frame rate.
	ErrNoFrameRate = errors.New("frame rate unavailable")
	// ErrNoFrame means the requested frame could not be decoded.
	ErrNoFrame = errors.New("no frame decoded")
)

// Clip is an opened video.
type Clip interface {
	// FrameRate is zero when unknown.
	FrameRate() float64
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// Extractor opens local video files.
type Extractor interface {
	Open(ctx context.Context, path string) (Clip, error)
}

// runner executes a binary and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg implements Extractor with the ffmpeg toolchain.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	run         runner
}

// NewFFmpeg returns an extractor using the given binaries. Empty paths fall
// back to "ffmpeg" and "ffprobe" on PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, run: execRunner}
}

// Available reports whether both binaries can be found.
func (f *FFmpeg) Available() error {
	for _, bin := range []string{f.FFmpegPath, f.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s is required but not found: %w", bin, err)
		}
	}
	return nil
}

// Open probes the file for its frame rate. An unreadable file is an error; a
// readable file without a video stream yields a clip with frame rate zero.
func (f *FFmpeg) Open(ctx context.Context, path string) (Clip, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	out, err := f.run(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	rate, err := parseProbe(out)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}
	return &ffmpegClip{ff: f, path: path, rate: rate}, nil
}

type probeOutput struct {
	Streams []struct {
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func parseProbe(out []byte) (float64, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return 0, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return 0, nil
	}
	s := p.Streams[0]
	if r := parseRate(s.RFrameRate); r > 0 {
		return r, nil
	}
	return parseRate(s.AvgFrameRate), nil
}

// parseRate reads "30000/1001", "25/1" or "29.97". Anything unusable is 0.
func parseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if ok {
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0
		}
		n /= d
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0
	}
	return n
}

type ffmpegClip struct {
	ff   *FFmpeg
	path string
	rate float64
}

func (c *ffmpegClip) FrameRate() float64 { return c.rate }

func (c *ffmpegClip) Frame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("frame %d: %w", index, ErrNoFrame)
	}
	out, err := c.ff.run(ctx, c.ff.FFmpegPath,
		"-v", "error",
		"-i", c.path,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-vsync", "0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w: %v", index, ErrNoFrame, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("frame %d: %w", index, ErrNoFrame)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w: %v", index, ErrNoFrame, err)
	}
	return img, nil
}

func (c *ffmpegClip) Close() error { return nil }

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// TargetIndex is floor(rate * seconds).
func TargetIndex(rate, seconds float64) int {
	return int(math.Floor(rate * seconds))
}

// Grab opens path and decodes the frame at the given timestamp. The returned
// index is the frame that was requested.
func Grab(ctx context.Context, ex Extractor, path string, seconds float64) (image.Image, int, error) {
	clip, err := ex.Open(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNoFrameRate, err)
	}
	defer clip.Close()

	rate := clip.FrameRate()
	if rate <= 0 || math.IsNaN(rate) {
		return nil, 0, ErrNoFrameRate
	}
	index := TargetIndex(rate, seconds)
	img, err := clip.Frame(ctx, index)
	if err != nil {
		return nil, index, err
	}
	if img == nil {
		return nil, index, fmt.Errorf("frame %d: %w", index, ErrNoFrame)
	}
	return img, index, nil
}

// EncodeJPEG writes img to path as a JPEG.
func EncodeJPEG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 95}); err != nil {
		f.Close()
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close thumbnail: %w", err)
	}
	return nil
}
