package asr

import (
	"context"
	"encoding/binary"
	"time"
)

// SampleRate is the PCM sample rate expected from clients, 16kHz mono 16-bit.
const SampleRate = 16000

// PCMDuration converts a raw 16-bit mono PCM byte count into playback time.
func PCMDuration(byteCount int) time.Duration {
	samples := byteCount / 2
	return time.Duration(samples) * time.Second / SampleRate
}

// Transcriber converts a batch of raw PCM audio into text. Implementations
// return an empty string when the audio contains no intelligible speech.
type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm []byte) (string, error)
	Description() string
}

// EncodeWAV wraps raw 16-bit mono PCM samples in a RIFF/WAVE container so
// they can be handed to backends that refuse bare sample data.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8

	buf := make([]byte, 0, 44+len(pcm))
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(pcm)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16) // PCM chunk size
	buf = binary.LittleEndian.AppendUint16(buf, 1)  // PCM format
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, channels*bitsPerSample/8)
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(pcm)))
	buf = append(buf, pcm...)
	return buf
}
