package audio

import (
	"encoding/binary"
	"fmt"
)

// WAVHeaderSize is the size of the canonical header this package writes.
const WAVHeaderSize = 44

// EncodeWAV wraps raw little-endian mono PCM16 data in a WAV container.
// The 44-byte header is byte-exact: RIFF size 36+len(pcm), PCM format 1,
// one channel, block align 2, 16 bits per sample, data size len(pcm).
// Standard audio tooling consumes the result directly.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	dataSize := len(pcm)
	buf := make([]byte, WAVHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV parses a PCM16 WAV payload and returns its sample data, rate and
// channel count. Chunks other than fmt and data are skipped, so containers
// with extra metadata still parse. The returned slice aliases b.
func DecodeWAV(b []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(b) < 12 {
		return nil, 0, 0, fmt.Errorf("audio: wav too short (%d bytes)", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("audio: not a RIFF/WAVE container")
	}

	var fmtSeen bool
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(b) {
			return nil, 0, 0, fmt.Errorf("audio: wav chunk %q overruns payload", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			if format := binary.LittleEndian.Uint16(b[body : body+2]); format != 1 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			if bits := binary.LittleEndian.Uint16(b[body+14 : body+16]); bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
			}
			fmtSeen = true
		case "data":
			if !fmtSeen {
				return nil, 0, 0, fmt.Errorf("audio: wav data chunk before fmt")
			}
			return b[body : body+size], sampleRate, channels, nil
		}

		// Chunks are word aligned; odd sizes carry a pad byte.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	return nil, 0, 0, fmt.Errorf("audio: wav has no data chunk")
}
