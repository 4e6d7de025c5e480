package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2beens/repcounter/internal/tracking"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/multierr"
)

// recording is a decompressed pose stream; closing it closes every layer, innermost first.
type recording struct {
	io.Reader
	closers []io.Closer
}

func (r *recording) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, r.closers[i].Close())
	}
	return err
}

// openRecording opens a JSON lines pose recording, plain, gzip (.gz) or zstd (.zst) compressed.
func openRecording(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, multierr.Combine(fmt.Errorf("gzip reader: %w", err), f.Close())
		}
		return &recording{Reader: gzr, closers: []io.Closer{f, gzr}}, nil
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, multierr.Combine(fmt.Errorf("zstd reader: %w", err), f.Close())
		}
		zr := dec.IOReadCloser()
		return &recording{Reader: zr, closers: []io.Closer{f, zr}}, nil
	default:
		return f, nil
	}
}

// replay feeds the whole recording through a fresh tracker and stops the run
// once the recording is exhausted or ctx is done.
func replay(
	ctx context.Context,
	rc io.ReadCloser,
	creator tracking.SessionCreator,
	cfg tracking.SmootherConfig,
) (*tracking.Summary, error) {
	tracker := tracking.NewTracker(creator, cfg, nil)
	run, err := tracker.Start(ctx, tracking.NewReaderSource(rc))
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	select {
	case <-run.Done():
	case <-ctx.Done():
	}

	return run.Stop(context.WithoutCancel(ctx))
}
