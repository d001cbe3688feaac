package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WAVInfo describes the format and length of a PCM WAV recording.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Duration      float64
}

// ProbeWAV reads format and duration from a WAV file header without
// loading the sample data.
func ProbeWAV(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := parseHeader(f)
	if err != nil {
		return nil, fmt.Errorf("invalid WAV file %s: %w", path, err)
	}
	return info, nil
}

func parseHeader(f *os.File) (*WAVInfo, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, fmt.Errorf("missing RIFF/WAVE header")
	}

	info := &WAVInfo{}
	var byteRate uint32
	var dataSize int64

	var fmtFound bool
	var dataFound bool

	for !fmtFound || !dataFound {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			return nil, err
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", chunkSize)
			}
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtChunk); err != nil {
				return nil, err
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if audioFormat != 1 {
				return nil, fmt.Errorf("unsupported audio format: %d", audioFormat)
			}
			info.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			byteRate = binary.LittleEndian.Uint32(fmtChunk[8:12])
			info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			fmtFound = true
		case "data":
			dataSize = int64(chunkSize)
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, err
			}
			dataFound = true
		default:
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, err
			}
		}
	}

	if byteRate > 0 {
		info.Duration = float64(dataSize) / float64(byteRate)
	}

	return info, nil
}

// WriteWAV writes 16-bit PCM samples into a WAV container.
func WriteWAV(w io.Writer, sampleRate, channels int, samples []int16) error {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	if channels <= 0 {
		channels = 1
	}

	dataSize := uint32(len(samples) * 2)
	header := make([]byte, 44)

	// ChunkID "RIFF"
	copy(header[0:], []byte("RIFF"))
	// ChunkSize
	binary.LittleEndian.PutUint32(header[4:], 36+dataSize)
	// Format "WAVE"
	copy(header[8:], []byte("WAVE"))
	// Subchunk1ID "fmt "
	copy(header[12:], []byte("fmt "))
	// Subchunk1Size (16 for PCM)
	binary.LittleEndian.PutUint32(header[16:], 16)
	// AudioFormat (1 = PCM)
	binary.LittleEndian.PutUint16(header[20:], 1)
	// NumChannels
	binary.LittleEndian.PutUint16(header[22:], uint16(channels))
	// SampleRate
	binary.LittleEndian.PutUint32(header[24:], uint32(sampleRate))
	// ByteRate = SampleRate * NumChannels * BitsPerSample/8 (16-bit samples)
	binary.LittleEndian.PutUint32(header[28:], uint32(sampleRate*channels*2))
	// BlockAlign = NumChannels * BitsPerSample/8
	binary.LittleEndian.PutUint16(header[32:], uint16(channels*2))
	// BitsPerSample = 16
	binary.LittleEndian.PutUint16(header[34:], 16)
	// Subchunk2ID "data"
	copy(header[36:], []byte("data"))
	// Subchunk2Size
	binary.LittleEndian.PutUint32(header[40:], dataSize)

	if _, err := w.Write(header); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, samples)
}
