package devserver

import (
	"fmt"
	"math"

	"github.com/zhouzirui/ai-interview/client/internal/analysis/emotion"
)

const (
	minPitchHz = 60
	maxPitchHz = 600
	// pitchWindow 音高只取中段的一小段估算
	pitchWindow = 8192
)

// VoiceFeatures 一轮回答的语音特征。
type VoiceFeatures struct {
	LoudnessDB      float64
	DurationSeconds float64
	PitchHz         float64
	Tone            emotion.Label
}

// String renders the analysis text sent in answer_result.
func (f VoiceFeatures) String() string {
	return fmt.Sprintf("响度: %.2f dB，时长: %.2f秒，音高: %.2f Hz，情感: %s",
		f.LoudnessDB, f.DurationSeconds, f.PitchHz, f.Tone)
}

// AnalyzeVoice computes loudness, duration and a rough pitch from PCM16
// samples, then estimates the tone from those and the transcript.
func AnalyzeVoice(samples []int16, sampleRate int, transcript string) VoiceFeatures {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	x := make([]float64, len(samples))
	var sum float64
	for i, s := range samples {
		x[i] = float64(s) / 32768
		sum += x[i] * x[i]
	}

	var rms float64
	if len(x) > 0 {
		rms = math.Sqrt(sum / float64(len(x)))
	}
	f := VoiceFeatures{
		LoudnessDB:      20 * math.Log10(rms+1e-10),
		DurationSeconds: float64(len(x)) / float64(sampleRate),
		PitchHz:         estimatePitch(x, sampleRate),
	}
	f.Tone = emotion.Estimate(transcript, emotion.Acoustics{LoudnessDB: f.LoudnessDB, PitchHz: f.PitchHz})
	return f
}

// estimatePitch picks the shortest near-maximal autocorrelation peak within
// the voice band over the middle of the signal. Short or silent input yields 0.
func estimatePitch(x []float64, sampleRate int) float64 {
	if len(x) <= 1024 {
		return 0
	}
	mid := x[len(x)/4 : 3*len(x)/4]
	if len(mid) > pitchWindow {
		start := (len(mid) - pitchWindow) / 2
		mid = mid[start : start+pitchWindow]
	}

	minLag := sampleRate / maxPitchHz
	maxLag := sampleRate / minPitchHz
	if maxLag >= len(mid) {
		maxLag = len(mid) - 1
	}

	var energy float64
	for _, v := range mid {
		energy += v * v
	}
	if energy == 0 {
		return 0
	}

	acc := make([]float64, maxLag+2)
	best := 0.0
	for lag := minLag; lag <= maxLag+1 && lag < len(mid); lag++ {
		var sum float64
		for i := 0; i+lag < len(mid); i++ {
			sum += mid[i] * mid[i+lag]
		}
		// 按重叠长度归一化，避免偏向短延迟
		acc[lag] = sum / float64(len(mid)-lag)
		if lag <= maxLag && acc[lag] > best {
			best = acc[lag]
		}
	}
	if best <= 0 {
		return 0
	}

	// 取最短的、接近全局最大值的局部峰，避免落到倍周期上
	for lag := minLag + 1; lag <= maxLag; lag++ {
		if acc[lag] >= 0.9*best && acc[lag] >= acc[lag-1] && acc[lag] >= acc[lag+1] {
			return float64(sampleRate) / float64(lag)
		}
	}
	return 0
}

// frameLoudness is the RMS level of one frame in dBFS.
func frameLoudness(samples []int16) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return 20 * math.Log10(math.Sqrt(sum/float64(len(samples)))+1e-10)
}
