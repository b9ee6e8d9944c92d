package datagram

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// DiscoveryPacketSize is the fixed size of the IP-discovery request and
// reply packets.
const DiscoveryPacketSize = 74

const (
	discoveryType   = 0x0001
	discoveryLength = 70
	ipFieldStart    = 8
	ipFieldEnd      = 72
	portFieldStart  = 72
	portFieldEnd    = 74
)

// ErrShortDiscoveryReply is returned when a reply is smaller than
// DiscoveryPacketSize.
var ErrShortDiscoveryReply = errors.New("datagram: short ip-discovery reply")

// BuildDiscoveryPacket encodes the 74-byte IP-discovery request for ssrc.
func BuildDiscoveryPacket(ssrc uint32) []byte {
	buf := make([]byte, DiscoveryPacketSize)
	binary.BigEndian.PutUint16(buf[0:2], discoveryType)
	binary.BigEndian.PutUint16(buf[2:4], discoveryLength)
	binary.BigEndian.PutUint32(buf[4:8], ssrc)
	return buf
}

// ParseDiscoveryReply extracts the external IP and UDP port from a
// 74-byte IP-discovery reply: a NUL-terminated ASCII IP string starting at
// offset 8, and the big-endian port in the final two bytes.
func ParseDiscoveryReply(reply []byte) (ip string, port uint16, err error) {
	if len(reply) < DiscoveryPacketSize {
		return "", 0, ErrShortDiscoveryReply
	}
	field := reply[ipFieldStart:ipFieldEnd]
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	port = binary.BigEndian.Uint16(reply[portFieldStart:portFieldEnd])
	return string(field), port, nil
}
