package audio

// MonoToStereo duplicates each mono sample into an interleaved L+R pair.
func MonoToStereo(pcm []int16) []int16 {
	out := make([]int16, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// ResampleMono resamples mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	srcSamples := len(pcm)
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = pcm[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// ResampleStereo resamples interleaved stereo PCM from srcRate to dstRate
// using linear interpolation per channel. Each stereo frame is an L+R sample
// pair. If srcRate == dstRate, the input is returned unchanged.
func ResampleStereo(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcFrames := len(pcm) / 2
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		l0 := pcm[srcIdx*2]
		r0 := pcm[srcIdx*2+1]
		l1, r1 := l0, r0
		if srcIdx+1 < srcFrames {
			l1 = pcm[(srcIdx+1)*2]
			r1 = pcm[(srcIdx+1)*2+1]
		}

		out[i*2] = int16(float64(l0)*(1-frac) + float64(l1)*frac)
		out[i*2+1] = int16(float64(r0)*(1-frac) + float64(r1)*frac)
	}
	return out
}

// ToPlaybackFormat converts arbitrary-rate mono or stereo PCM into the
// 48 kHz stereo format the voice transport sends. Used when loading clips.
func ToPlaybackFormat(pcm []int16, sampleRate, channels int) []int16 {
	if channels == 1 {
		return MonoToStereo(ResampleMono(pcm, sampleRate, SampleRate))
	}
	return ResampleStereo(pcm, sampleRate, SampleRate)
}
