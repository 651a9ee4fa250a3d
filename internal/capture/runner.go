package capture

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	logx "aircheck/pkg/logx"
)

// Request describes one bounded capture of a stream to a file.
type Request struct {
	StreamURL       string
	OutputPath      string
	DurationSeconds int
	BitrateKbps     int
	Format          string
}

// Handle observes a running capture process.
type Handle interface {
	// Wait blocks until the process exits and returns its error, if any.
	Wait() error
	// Kill force-terminates the process. Safe to call after exit.
	Kill()
}

// Runner starts capture processes. The production implementation shells out
// to ffmpeg; tests inject a fake.
type Runner interface {
	Run(ctx context.Context, req Request) (Handle, error)
}

// FFmpegRunner records a network stream with the ffmpeg binary.
//
// The -t flag bounds the amount of source audio; the executor's deadline
// timer is the backstop for a source that never closes the stream.
type FFmpegRunner struct {
	// Bin overrides the ffmpeg binary path. Empty means "ffmpeg" from PATH.
	Bin string

	Log logx.Logger
}

func (r *FFmpegRunner) Run(ctx context.Context, req Request) (Handle, error) {
	bin := strings.TrimSpace(r.Bin)
	if bin == "" {
		bin = "ffmpeg"
	}

	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", req.StreamURL,
		"-t", strconv.Itoa(req.DurationSeconds),
		"-vn",
		"-acodec", codecFor(req.Format),
		"-b:a", strconv.Itoa(req.BitrateKbps) + "k",
		req.OutputPath,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	if !r.Log.IsZero() {
		r.Log.Debug("capture process started",
			logx.Int("pid", cmd.Process.Pid),
			logx.String("output", req.OutputPath),
			logx.Int("duration_sec", req.DurationSeconds),
			logx.Int("bitrate_kbps", req.BitrateKbps),
		)
	}
	return &procHandle{cmd: cmd}, nil
}

type procHandle struct {
	cmd *exec.Cmd
}

func (h *procHandle) Wait() error { return h.cmd.Wait() }

func (h *procHandle) Kill() {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

func codecFor(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "aac", "m4a":
		return "aac"
	case "ogg", "opus":
		return "libopus"
	default:
		return "libmp3lame"
	}
}
