// The MIT License (MIT)
//
// # Copyright (c) 2025 Winlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
package sctp

import (
	"fmt"
)

/*
ChunkPayloadData represents an SCTP Chunk of type DATA: one fragment of a user
message, carried between the stream and the association. The receive pipeline
hands validated chunks to Stream.HandleData; the write path emits chunks into
the shared PendingQueue. Wire encoding and decoding belong to the association.

An unfragmented user message has both the B and E bits set to '1'. Setting
both B and E bits to '0' indicates a middle fragment of a multi-fragment user
message, as summarized in the following table:

	   B E                  Description
	============================================================
	|  1 0 | First piece of a fragmented user message          |
	+----------------------------------------------------------+
	|  0 0 | Middle piece of a fragmented user message         |
	+----------------------------------------------------------+
	|  0 1 | Last piece of a fragmented user message           |
	+----------------------------------------------------------+
	|  1 1 | Unfragmented message                              |
	============================================================
*/
type ChunkPayloadData struct {
	Unordered         bool
	BeginningFragment bool
	EndingFragment    bool
	ImmediateSack     bool

	TSN                  uint32
	StreamIdentifier     uint16
	StreamSequenceNumber uint16
	PayloadType          PayloadProtocolIdentifier
	UserData             []byte
}

// PayloadProtocolIdentifier is an enum for DataChannel payload types
type PayloadProtocolIdentifier uint32

// PayloadProtocolIdentifier enums
// https://www.iana.org/assignments/sctp-parameters/sctp-parameters.xhtml#sctp-parameters-25
const (
	PayloadTypeWebRTCDCEP        PayloadProtocolIdentifier = 50
	PayloadTypeWebRTCString      PayloadProtocolIdentifier = 51
	PayloadTypeWebRTCBinary      PayloadProtocolIdentifier = 53
	PayloadTypeWebRTCStringEmpty PayloadProtocolIdentifier = 56
	PayloadTypeWebRTCBinaryEmpty PayloadProtocolIdentifier = 57
)

func (p PayloadProtocolIdentifier) String() string {
	switch p {
	case PayloadTypeWebRTCDCEP:
		return "WebRTC DCEP"
	case PayloadTypeWebRTCString:
		return "WebRTC String"
	case PayloadTypeWebRTCBinary:
		return "WebRTC Binary"
	case PayloadTypeWebRTCStringEmpty:
		return "WebRTC String (Empty)"
	case PayloadTypeWebRTCBinaryEmpty:
		return "WebRTC Binary (Empty)"
	default:
		return fmt.Sprintf("Unknown Payload Protocol Identifier: %d", p)
	}
}

// Complete reports whether this chunk carries an entire user message on its
// own, both fragment bits set.
func (p *ChunkPayloadData) Complete() bool {
	return p.BeginningFragment && p.EndingFragment
}

// String makes ChunkPayloadData printable
func (p *ChunkPayloadData) String() string {
	return fmt.Sprintf("DATA tsn=%d si=%d ssn=%d ppi=%d unordered=%v B=%v E=%v len=%d",
		p.TSN, p.StreamIdentifier, p.StreamSequenceNumber, p.PayloadType,
		p.Unordered, p.BeginningFragment, p.EndingFragment, len(p.UserData))
}
