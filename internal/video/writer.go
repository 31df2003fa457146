package video

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/andresmejia3/facereel/internal/utils"
)

// FrameSink accepts frames of a fixed size in display order.
type FrameSink interface {
	WriteFrame(img image.Image) error
	Close() error
}

// Writer pipes packed RGBA frames into an ffmpeg encoder. The process is
// started on the first WriteFrame so a sink that never sees a frame leaves no
// file behind.
type Writer struct {
	ctx        context.Context
	ffmpegPath string
	path       string
	opts       utils.EncodeOptions

	cmd    *utils.SafeCommand
	stdin  io.WriteCloser
	rgba   *image.RGBA
	frames int
}

func NewWriter(ctx context.Context, ffmpegPath, path string, opts utils.EncodeOptions) *Writer {
	return &Writer{ctx: ctx, ffmpegPath: ffmpegPath, path: path, opts: opts}
}

func (w *Writer) start() error {
	cmd := utils.NewSafeCommand(w.ctx, w.ffmpegPath, utils.FFmpegEncoderArgs(w.path, w.opts)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}
	w.cmd = cmd
	w.stdin = stdin
	w.rgba = image.NewRGBA(image.Rect(0, 0, w.opts.Width, w.opts.Height))
	return nil
}

// WriteFrame appends img. Its size must match the configured width and height.
func (w *Writer) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != w.opts.Width || b.Dy() != w.opts.Height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), w.opts.Width, w.opts.Height)
	}
	if w.cmd == nil {
		if err := w.start(); err != nil {
			return err
		}
	}

	draw.Draw(w.rgba, w.rgba.Bounds(), img, b.Min, draw.Src)
	// ffmpeg's stderr is only safe to read after Wait, so Close reports it
	if _, err := w.stdin.Write(w.rgba.Pix); err != nil {
		return fmt.Errorf("encoder pipe closed: %w", err)
	}
	w.frames++
	return nil
}

// Frames reports how many frames were written.
func (w *Writer) Frames() int { return w.frames }

// Close flushes the encoder and waits for it to exit.
func (w *Writer) Close() error {
	if w.cmd == nil {
		return nil
	}
	cmd := w.cmd
	w.cmd = nil
	closeErr := w.stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("encoder failed: %w", cmd.Wrap(err))
	}
	return closeErr
}
