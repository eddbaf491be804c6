// Package audio defines the PCM format contract shared by the voice
// transport, the recognizer feeders, and the clip loader.
//
// All live audio flows as interleaved 16-bit signed little-endian PCM at
// 48 kHz stereo, the format Discord's Opus codec produces and consumes.
// Recognizers receive a mono downmix of the same rate.
package audio

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	SampleRate  = 48000
	Channels    = 2
	FrameSizeMs = 20
	// FrameSize is the number of samples per channel per 20 ms frame.
	FrameSize = SampleRate * FrameSizeMs / 1000 // 960
)

// DownmixStereo folds interleaved stereo PCM into mono by halving each
// channel before summing: mono[i] = in[2i]/2 + in[2i+1]/2. Each operand is
// divided with truncating int16 division before the addition; averaging the
// sum instead produces off-by-one results on odd samples and downstream
// consumers depend on the exact values. A trailing unpaired sample is dropped.
func DownmixStereo(in []int16) []int16 {
	out := make([]int16, 0, len(in)/2)
	for i := 0; i+1 < len(in); i += 2 {
		out = append(out, in[i]/2+in[i+1]/2)
	}
	return out
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
