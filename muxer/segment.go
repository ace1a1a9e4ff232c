// Copyright 2023 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package muxer

import "time"

const (
	segmentProtocolIdResponseFlag = 0x8000
	// SegmentMaxPayloadLength is the largest payload a single segment can
	// carry; PayloadLength is a 16-bit wire field.
	SegmentMaxPayloadLength = 65535
)

// SegmentHeader is the fixed-size header prefixing every segment on the wire.
type SegmentHeader struct {
	Timestamp     uint32
	ProtocolId    uint16
	PayloadLength uint16
}

// Segment is a single length-framed unit of mini-protocol traffic.
type Segment struct {
	SegmentHeader
	Payload []byte
}

// NewSegment builds a Segment ready to send. It returns nil if payload
// exceeds SegmentMaxPayloadLength, since PayloadLength cannot represent it.
func NewSegment(protocolId uint16, payload []byte, isResponse bool) *Segment {
	if len(payload) > SegmentMaxPayloadLength {
		return nil
	}
	header := SegmentHeader{
		Timestamp:  uint32(time.Now().UnixNano() & 0xffffffff),
		ProtocolId: protocolId,
	}
	if isResponse {
		header.ProtocolId += segmentProtocolIdResponseFlag
	}
	header.PayloadLength = uint16(len(payload))
	return &Segment{
		SegmentHeader: header,
		Payload:       payload,
	}
}

// IsRequest reports whether this segment carries a mini-protocol request.
func (s *SegmentHeader) IsRequest() bool {
	return (s.ProtocolId & segmentProtocolIdResponseFlag) == 0
}

// IsResponse reports whether this segment carries a mini-protocol response.
func (s *SegmentHeader) IsResponse() bool {
	return (s.ProtocolId & segmentProtocolIdResponseFlag) > 0
}

// GetProtocolId returns the protocol ID with the response flag bit masked off.
func (s *SegmentHeader) GetProtocolId() uint16 {
	if s.ProtocolId >= segmentProtocolIdResponseFlag {
		return s.ProtocolId - segmentProtocolIdResponseFlag
	}
	return s.ProtocolId
}
