package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const bitsPerSample = 16

// maxChunkBytes caps the declared size of any single WAV chunk. Clip
// uploads are far smaller; the cap keeps a malformed size field from
// forcing a multi-gigabyte allocation.
const maxChunkBytes = 16 << 20

// DecodeWAV parses a RIFF/WAV container holding 16-bit PCM and returns the
// interleaved samples together with the declared sample rate and channel
// count. Chunks other than "fmt " and "data" are skipped. Compressed or
// non-16-bit formats are rejected.
func DecodeWAV(r io.Reader) (pcm []int16, sampleRate, channels int, err error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, 0, fmt.Errorf("audio: read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("audio: not a RIFF/WAVE file")
	}

	var (
		fmtSeen bool
		data    []byte
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, 0, 0, fmt.Errorf("audio: read wav chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])
		if size > maxChunkBytes {
			return nil, 0, 0, fmt.Errorf("audio: wav chunk %q declares %d bytes, max %d", id, size, maxChunkBytes)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, errors.New("audio: wav fmt chunk too short")
			}
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, 0, 0, fmt.Errorf("audio: read wav fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			if format != 1 { // PCM
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bps := binary.LittleEndian.Uint16(buf[14:16])
			if bps != bitsPerSample {
				return nil, 0, 0, fmt.Errorf("audio: unsupported wav bit depth %d", bps)
			}
			fmtSeen = true
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, 0, 0, fmt.Errorf("audio: read wav data chunk: %w", err)
			}
		default:
			// Skip unknown chunks; sizes are padded to even byte counts.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, 0, fmt.Errorf("audio: skip wav chunk %q: %w", id, err)
			}
		}
		if fmtSeen && data != nil {
			break
		}
	}

	if !fmtSeen {
		return nil, 0, 0, errors.New("audio: wav missing fmt chunk")
	}
	if data == nil {
		return nil, 0, 0, errors.New("audio: wav missing data chunk")
	}
	if channels < 1 || channels > 2 {
		return nil, 0, 0, fmt.Errorf("audio: unsupported wav channel count %d", channels)
	}
	return BytesToInt16s(data), sampleRate, channels, nil
}

// EncodeWAV wraps 16-bit little-endian PCM samples in a minimal 44-byte
// RIFF/WAV container.
func EncodeWAV(pcm []int16, sampleRate, channels int) []byte {
	data := Int16sToBytes(pcm)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(data)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], data)

	return buf
}
