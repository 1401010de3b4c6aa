package vocalis

import "context"

// Capture produces outbound PCM16 mono audio chunks at the protocol rate.
// *audio.MicCapture and *audio.FileCapture implement it; tests substitute
// fakes.
//
// Start acquires the device and begins producing on Chunks. A failed Start
// must wrap audio.ErrDeviceUnavailable when the device cannot be acquired.
// Stop releases the device; the accumulated utterance stays readable until
// the next Start. Implementations must be safe for concurrent use.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	Chunks() <-chan []byte
	Utterance() []byte
}

// Player plays complete assistant WAV payloads. *audio.Speaker implements it.
//
// Play starts playback of one payload, replacing whatever is currently
// playing. Stop halts playback immediately.
type Player interface {
	Play(wav []byte) error
	Stop()
}
