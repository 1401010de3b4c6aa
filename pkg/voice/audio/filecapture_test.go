package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestWAV(t *testing.T, pcm []byte, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	if err := os.WriteFile(path, EncodeWAV(pcm, rate), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func collectChunks(t *testing.T, c *FileCapture) [][]byte {
	t.Helper()
	var chunks [][]byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk := <-c.Chunks():
			chunks = append(chunks, chunk)
		case <-c.Drained():
			// Drained closes once everything is on the channel; pull the rest.
			for {
				select {
				case chunk := <-c.Chunks():
					chunks = append(chunks, chunk)
				default:
					return chunks
				}
			}
		case <-timeout:
			t.Fatalf("timed out draining file capture")
		}
	}
}

func TestFileCapture_ReplaysThroughDecimation(t *testing.T) {
	t.Parallel()

	// 32k source at 2:1 into 8-sample chunks: 16 source samples per chunk.
	src := make([]byte, 40*2)
	for i := 0; i < 40; i++ {
		binary.LittleEndian.PutUint16(src[i*2:], uint16(int16(i*256)))
	}
	path := writeTestWAV(t, src, 32000)

	capture, err := NewFileCapture(FileCaptureConfig{
		Path:             path,
		TargetSampleRate: 16000,
		ChunkSamples:     8,
	})
	if err != nil {
		t.Fatalf("NewFileCapture error: %v", err)
	}

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer capture.Stop()

	chunks := collectChunks(t, capture)
	// 40 source samples: two full 16-sample cuts plus a padded tail.
	if len(chunks) != 3 {
		t.Fatalf("chunks=%d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) != 16 {
			t.Fatalf("chunk %d size=%d, want 16", i, len(chunk))
		}
	}

	// Every second source sample, quantization preserved through the float trip.
	first := pcm16Samples(t, chunks[0])
	for i := 0; i < 8; i++ {
		want := int16(i * 2 * 256)
		if first[i] != want {
			t.Errorf("chunk0 sample %d=%d, want %d", i, first[i], want)
		}
	}

	// The utterance holds exactly what was emitted.
	want := bytes.Join(chunks, nil)
	if got := capture.Utterance(); !bytes.Equal(got, want) {
		t.Errorf("utterance=%d bytes, want %d", len(got), len(want))
	}
}

func TestFileCapture_RestartResetsUtterance(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 64)
	path := writeTestWAV(t, pcm, 16000)

	capture, err := NewFileCapture(FileCaptureConfig{
		Path:             path,
		TargetSampleRate: 16000,
		ChunkSamples:     8,
	})
	if err != nil {
		t.Fatalf("NewFileCapture error: %v", err)
	}

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	firstRun := collectChunks(t, capture)
	capture.Stop()
	if len(firstRun) == 0 {
		t.Fatalf("no chunks on first run")
	}
	if len(capture.Utterance()) == 0 {
		t.Fatalf("utterance empty after run; must survive Stop")
	}

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	defer capture.Stop()
	secondRun := collectChunks(t, capture)
	if len(secondRun) != len(firstRun) {
		t.Fatalf("second run chunks=%d, want %d", len(secondRun), len(firstRun))
	}
	want := bytes.Join(secondRun, nil)
	if got := capture.Utterance(); !bytes.Equal(got, want) {
		t.Fatalf("utterance after restart=%d bytes, want %d (fresh run only)", len(got), len(want))
	}
}

func TestFileCapture_StopInterruptsReplay(t *testing.T) {
	t.Parallel()

	// More chunks than the channel buffers, so the feeder must be mid-send.
	pcm := make([]byte, 16*6*2)
	path := writeTestWAV(t, pcm, 16000)

	capture, err := NewFileCapture(FileCaptureConfig{
		Path:             path,
		TargetSampleRate: 16000,
		ChunkSamples:     16,
		ChunkBuffer:      2,
	})
	if err != nil {
		t.Fatalf("NewFileCapture error: %v", err)
	}

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		capture.Stop() // must unblock the feeder and return
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop hung on a blocked feeder")
	}

	select {
	case <-capture.Drained():
	default:
		t.Fatalf("Drained not closed after Stop")
	}
}

func TestFileCapture_DownmixesStereo(t *testing.T) {
	t.Parallel()

	// Two frames: (1000, 3000) and (-2000, -4000).
	src := make([]byte, 8)
	for i, s := range []int16{1000, 3000, -2000, -4000} {
		binary.LittleEndian.PutUint16(src[2*i:], uint16(s))
	}

	mono := downmixStereo(src)
	got := pcm16Samples(t, mono)
	want := []int16{2000, -3000}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("downmix=%v, want %v", got, want)
	}
}

func TestFileCapture_StartFailures(t *testing.T) {
	t.Parallel()

	if _, err := NewFileCapture(FileCaptureConfig{}); err == nil {
		t.Errorf("empty path accepted")
	}

	missing, err := NewFileCapture(FileCaptureConfig{Path: filepath.Join(t.TempDir(), "nope.wav")})
	if err != nil {
		t.Fatalf("NewFileCapture error: %v", err)
	}
	if err := missing.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("missing file err=%v, want ErrDeviceUnavailable", err)
	}

	garbagePath := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(garbagePath, []byte("definitely not a wav"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	garbage, err := NewFileCapture(FileCaptureConfig{Path: garbagePath})
	if err != nil {
		t.Fatalf("NewFileCapture error: %v", err)
	}
	if err := garbage.Start(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("garbage file err=%v, want ErrDeviceUnavailable", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := NewFileCapture(FileCaptureConfig{Path: garbagePath})
	if err != nil {
		t.Fatalf("NewFileCapture error: %v", err)
	}
	if err := ok.Start(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled ctx err=%v, want context.Canceled", err)
	}
}
