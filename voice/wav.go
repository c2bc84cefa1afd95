package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Format describes 16-bit little-endian mono PCM.
type Format struct {
	SampleRate int
}

// DefaultFormat matches the speech endpoint's pcm output.
var DefaultFormat = Format{SampleRate: 24000}

func (f Format) BytesRate() int { return f.SampleRate * 2 }

// Duration returns the play time of n bytes.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(f.BytesRate())
}

// WriteWAV wraps pcm in a canonical 44-byte RIFF header.
func (f Format) WriteWAV(w io.Writer, pcm []byte) error {
	if f.SampleRate <= 0 {
		return errors.New("wav: sample rate must be positive")
	}
	hdr := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesRate()),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	_, err := w.Write(pcm)
	return err
}

// SaveWAV writes pcm to path as a WAV file.
func (f Format) SaveWAV(path string, pcm []byte) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.WriteWAV(out, pcm); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
