// Package pcm holds the audio frame type and the little-endian 16-bit PCM
// helpers shared by the session pipeline and the transcription gateways.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultSampleRate is the rate browser clients downsample to.
	DefaultSampleRate = 16000

	// BytesPerSample for signed 16-bit mono audio.
	BytesPerSample = 2

	bitsPerSample = 16
	wavHeaderSize = 44
)

// ErrMalformedFrame is returned by DecodeFrame for payloads that cannot be
// interpreted as 16-bit PCM.
var ErrMalformedFrame = errors.New("malformed audio frame")

// Frame is one block of inbound audio. Frames are immutable once decoded.
type Frame struct {
	Seq     uint64
	Arrived time.Time
	Samples []int16
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int {
	return len(f.Samples)
}

// DecodeFrame converts a little-endian PCM payload into a Frame.
// maxBytes <= 0 disables the size check.
func DecodeFrame(seq uint64, payload []byte, maxBytes int) (Frame, error) {
	if len(payload) == 0 {
		return Frame{}, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}
	if len(payload)%BytesPerSample != 0 {
		return Frame{}, fmt.Errorf("%w: odd payload length %d", ErrMalformedFrame, len(payload))
	}
	if maxBytes > 0 && len(payload) > maxBytes {
		return Frame{}, fmt.Errorf("%w: payload %d bytes exceeds limit %d", ErrMalformedFrame, len(payload), maxBytes)
	}
	return Frame{
		Seq:     seq,
		Arrived: time.Now(),
		Samples: DecodeLE(payload),
	}, nil
}

// DecodeLE converts little-endian 16-bit PCM bytes to samples. A trailing odd
// byte is ignored.
func DecodeLE(b []byte) []int16 {
	n := len(b) / BytesPerSample
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return samples
}

// EncodeLE converts samples to little-endian 16-bit PCM bytes.
func EncodeLE(samples []int16) []byte {
	b := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// EncodeWAV wraps mono 16-bit PCM bytes in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// Duration returns the play time of n samples at sampleRate.
func Duration(n int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// Seconds returns the offset of sample index n in seconds.
func Seconds(n int64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate)
}
