// Package audio implements the capture and playback pipelines of a voice
// session: native-rate microphone capture decimated to the protocol's fixed
// 16 kHz PCM16 chunks, WAV assembly/parsing for payloads and recordings, and
// speaker playback. Capture and playback are independent resources acquired
// and released per session.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decimator converts native-rate float samples into fixed-size PCM16 chunks
// at a target rate by nearest-neighbor sampling. No anti-alias filtering is
// applied; the latency win is deliberate and the voice band tolerates it.
// Not safe for concurrent use; callers serialize Push/Flush/Reset.
type Decimator struct {
	ratio        float64
	need         int
	chunkSamples int
	buf          []float32
}

// NewDecimator builds a decimator producing chunkSamples-sample chunks at
// targetRate from input at nativeRate.
func NewDecimator(nativeRate, targetRate, chunkSamples int) (*Decimator, error) {
	if nativeRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", nativeRate, targetRate)
	}
	if chunkSamples <= 0 {
		return nil, fmt.Errorf("audio: invalid chunk size %d", chunkSamples)
	}
	ratio := float64(nativeRate) / float64(targetRate)
	need := int(float64(chunkSamples) * ratio)
	// The last source index must stay inside the consumed window.
	if maxSrc := int(float64(chunkSamples-1) * ratio); need <= maxSrc {
		need = maxSrc + 1
	}
	return &Decimator{
		ratio:        ratio,
		need:         need,
		chunkSamples: chunkSamples,
		buf:          make([]float32, 0, need*2),
	}, nil
}

// Push appends native-rate samples and returns every complete chunk that can
// be cut from the rolling buffer. Unconsumed samples carry into the next
// call.
func (d *Decimator) Push(samples []float32) [][]byte {
	d.buf = append(d.buf, samples...)

	var chunks [][]byte
	for len(d.buf) >= d.need {
		chunks = append(chunks, d.cut())
	}
	return chunks
}

// Flush pads the remaining samples with silence and emits one final chunk,
// or nil when the buffer is empty. Used by file-backed capture at EOF; live
// capture simply drops its tail on stop.
func (d *Decimator) Flush() []byte {
	if len(d.buf) == 0 {
		return nil
	}
	for len(d.buf) < d.need {
		d.buf = append(d.buf, 0)
	}
	return d.cut()
}

func (d *Decimator) cut() []byte {
	out := make([]byte, d.chunkSamples*2)
	for i := 0; i < d.chunkSamples; i++ {
		src := int(float64(i) * d.ratio)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(Quantize(d.buf[src])))
	}
	remaining := copy(d.buf, d.buf[d.need:])
	d.buf = d.buf[:remaining]
	return out
}

// Pending reports how many native samples are waiting for the next chunk.
func (d *Decimator) Pending() int {
	return len(d.buf)
}

// Reset drops any buffered samples.
func (d *Decimator) Reset() {
	d.buf = d.buf[:0]
}

// Quantize converts a float sample in [-1, 1] to a 16-bit signed value via
// round(sample * 32767), clamping the result to the int16 range.
func Quantize(sample float32) int16 {
	v := math.Round(float64(sample) * 32767)
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// FloatsFromPCM16 expands little-endian 16-bit samples to floats in [-1, 1).
func FloatsFromPCM16(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// floatsFromF32LE reinterprets a little-endian float32 byte stream, the
// native format of the capture callback.
func floatsFromF32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// ResamplePCM16 converts mono PCM16 between rates by nearest-neighbor
// sampling. Returns the input unchanged when the rates already match.
func ResamplePCM16(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate {
		return pcm, nil
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(float64(srcSamples) * float64(toRate) / float64(fromRate))
	ratio := float64(fromRate) / float64(toRate)
	out := make([]byte, dstSamples*2)
	for i := 0; i < dstSamples; i++ {
		src := int(float64(i) * ratio)
		if src >= srcSamples {
			src = srcSamples - 1
		}
		copy(out[i*2:i*2+2], pcm[src*2:src*2+2])
	}
	return out, nil
}

// RMSEnergy computes the root-mean-square level of mono PCM16 data,
// normalized to [0, 1]. Useful for level meters and capture diagnostics.
func RMSEnergy(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
