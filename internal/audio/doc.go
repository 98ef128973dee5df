// Package audio captures microphone-like input, resamples it to 16 kHz mono
// and emits fixed-size PCM16 frames for streaming.
package audio
