package interview

import "encoding/binary"

// AudioFrame 固定长度的16位PCM帧，只按到达顺序排序，不携带序号。
type AudioFrame struct {
	Samples []int16
}

// Bytes encodes the frame as little-endian PCM16 for the wire.
func (f AudioFrame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FrameFromBytes decodes little-endian PCM16; a trailing odd byte is dropped.
func FrameFromBytes(data []byte) AudioFrame {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return AudioFrame{Samples: samples}
}
