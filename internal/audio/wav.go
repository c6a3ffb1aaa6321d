// Package audio turns synthesizer payloads into playable artifacts,
// tracks their lifetime and bundles them into archives.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/daikw/keyvox/internal/speech"
)

// DefaultSampleRate is assumed for raw PCM that carries no rate
const DefaultSampleRate = 24000

var ErrEmptyAudio = errors.New("empty audio payload")

// PCMFormat describes raw PCM samples
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultPCMFormat returns 24 kHz mono signed 16-bit
func DefaultPCMFormat() PCMFormat {
	return PCMFormat{SampleRate: DefaultSampleRate, Channels: 1, BitDepth: 16}
}

// BytesPerFrame returns the number of bytes per sample frame
func (f PCMFormat) BytesPerFrame() int {
	return f.BitDepth / 8 * f.Channels
}

// EncodeWAV prefixes PCM data with a canonical 44-byte RIFF/WAVE header
func EncodeWAV(pcm []byte, f PCMFormat) []byte {
	byteRate := f.SampleRate * f.BytesPerFrame()

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.BytesPerFrame()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(f.BitDepth))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// IsWAV reports whether data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// EnsureContainer returns the payload in a playable container.
// Raw PCM is wrapped into WAV; other formats pass through.
func EnsureContainer(a speech.Audio) ([]byte, speech.Format, error) {
	if len(a.Data) == 0 {
		return nil, "", ErrEmptyAudio
	}

	switch a.Format {
	case speech.FormatPCM:
		f := DefaultPCMFormat()
		if a.SampleRate > 0 {
			f.SampleRate = a.SampleRate
		}
		if len(a.Data)%f.BytesPerFrame() != 0 {
			return nil, "", fmt.Errorf("PCM data length %d is not aligned to %d-byte frames", len(a.Data), f.BytesPerFrame())
		}
		return EncodeWAV(a.Data, f), speech.FormatWAV, nil
	case speech.FormatWAV, "":
		if IsWAV(a.Data) {
			return a.Data, speech.FormatWAV, nil
		}
		// LINEAR16 without a header
		f := DefaultPCMFormat()
		if a.SampleRate > 0 {
			f.SampleRate = a.SampleRate
		}
		return EncodeWAV(a.Data, f), speech.FormatWAV, nil
	default:
		return a.Data, a.Format, nil
	}
}
