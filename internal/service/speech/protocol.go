package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion 流式识别二进制协议版本
const ProtocolVersion = 0b0001

// MessageType 消息类型
type MessageType uint8

const (
	// FullClientRequest 携带识别参数的首包
	FullClientRequest MessageType = 0b0001
	// AudioOnlyRequest 只包含音频数据的请求
	AudioOnlyRequest MessageType = 0b0010
	// FullServerResponse 服务端返回的识别结果
	FullServerResponse MessageType = 0b1001
	// ErrorMessage 服务端错误消息
	ErrorMessage MessageType = 0b1111
)

// MessageFlags 消息特定标志
type MessageFlags uint8

const (
	// NoSequenceNumber header后不带sequence
	NoSequenceNumber MessageFlags = 0b0000
	// PositiveSequenceNumber header后4个字节为正数sequence
	PositiveSequenceNumber MessageFlags = 0b0001
	// LastPacketNoSequence 最后一包，不带sequence
	LastPacketNoSequence MessageFlags = 0b0010
	// NegativeSequenceNumber 负数sequence，表示最后一包
	NegativeSequenceNumber MessageFlags = 0b0011
)

// SerializationMethod 序列化方法
type SerializationMethod uint8

const (
	NoSerialization   SerializationMethod = 0b0000
	JSONSerialization SerializationMethod = 0b0001
)

// CompressionMethod 压缩方法
type CompressionMethod uint8

const (
	NoCompression   CompressionMethod = 0b0000
	GzipCompression CompressionMethod = 0b0001
)

// Header 4字节消息头
type Header struct {
	ProtocolVersion     uint8 // 4 bits
	HeaderSize          uint8 // 4 bits, 以4字节为单位
	MessageType         MessageType
	MessageFlags        MessageFlags
	SerializationMethod SerializationMethod
	CompressionMethod   CompressionMethod
	Reserved            uint8
}

// Message 一个完整的协议帧
type Message struct {
	Header    Header
	Sequence  int32 // 取决于MessageFlags
	ErrorCode uint32
	Payload   []byte
}

// NewHeader 创建4字节头
func NewHeader(msgType MessageType, flags MessageFlags, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     ProtocolVersion,
		HeaderSize:          0b0001,
		MessageType:         msgType,
		MessageFlags:        flags,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
	}
}

// Encode 编码消息头为4字节
func (h *Header) Encode() []byte {
	return []byte{
		(h.ProtocolVersion << 4) | h.HeaderSize,
		(uint8(h.MessageType) << 4) | uint8(h.MessageFlags),
		(uint8(h.SerializationMethod) << 4) | uint8(h.CompressionMethod),
		h.Reserved,
	}
}

// DecodeHeader 从4字节解码消息头
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("header data too short: got %d, need 4", len(data))
	}

	header := &Header{
		ProtocolVersion:     (data[0] >> 4) & 0x0F,
		HeaderSize:          data[0] & 0x0F,
		MessageType:         MessageType((data[1] >> 4) & 0x0F),
		MessageFlags:        MessageFlags(data[1] & 0x0F),
		SerializationMethod: SerializationMethod((data[2] >> 4) & 0x0F),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
		Reserved:            data[3],
	}

	if header.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", header.ProtocolVersion)
	}
	return header, nil
}

func (m *Message) hasSequence() bool {
	switch m.Header.MessageFlags & 0b0011 {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		return true
	}
	return false
}

// IsLastPacket 判断是否为最后一包
func (m *Message) IsLastPacket() bool {
	switch m.Header.MessageFlags & 0b0011 {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	}
	return false
}

// Encode 按 header、sequence、错误码、payload 长度与 payload 的顺序编码（大端序）
func (m *Message) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(m.Header.Encode())

	word := make([]byte, 4)
	if m.hasSequence() {
		binary.BigEndian.PutUint32(word, uint32(m.Sequence))
		buf.Write(word)
	}
	if m.Header.MessageType == ErrorMessage {
		binary.BigEndian.PutUint32(word, m.ErrorCode)
		buf.Write(word)
	}
	binary.BigEndian.PutUint32(word, uint32(len(m.Payload)))
	buf.Write(word)
	buf.Write(m.Payload)
	return buf.Bytes()
}

// DecodeMessage 解码完整消息
func DecodeMessage(reader io.Reader) (*Message, error) {
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	msg := &Message{Header: *header}

	// 跳过扩展头
	if extra := int(header.HeaderSize)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, reader, int64(extra)); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	word := make([]byte, 4)
	if msg.hasSequence() {
		if _, err := io.ReadFull(reader, word); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
		msg.Sequence = int32(binary.BigEndian.Uint32(word))
	}
	if header.MessageType == ErrorMessage {
		if _, err := io.ReadFull(reader, word); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
		msg.ErrorCode = binary.BigEndian.Uint32(word)
	}

	if _, err := io.ReadFull(reader, word); err != nil {
		return nil, fmt.Errorf("failed to read payload size: %w", err)
	}
	if size := binary.BigEndian.Uint32(word); size > 0 {
		msg.Payload = make([]byte, size)
		if _, err := io.ReadFull(reader, msg.Payload); err != nil {
			return nil, fmt.Errorf("failed to read payload (expected %d bytes): %w", size, err)
		}
	}
	return msg, nil
}

// NewFullClientRequest 创建携带识别参数的首包
func NewFullClientRequest(payload []byte, compression CompressionMethod) *Message {
	return &Message{
		Header:  NewHeader(FullClientRequest, NoSequenceNumber, JSONSerialization, compression),
		Payload: payload,
	}
}

// NewAudioRequest 创建音频包，最后一包的 sequence 取负
func NewAudioRequest(audio []byte, sequence int32, isLast bool, compression CompressionMethod) *Message {
	flags := PositiveSequenceNumber
	if isLast {
		flags = NegativeSequenceNumber
		sequence = -sequence
	}
	return &Message{
		Header:   NewHeader(AudioOnlyRequest, flags, NoSerialization, compression),
		Sequence: sequence,
		Payload:  audio,
	}
}
