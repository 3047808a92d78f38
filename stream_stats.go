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
	"sync/atomic"
)

type streamStats struct {
	nChunksReceived    uint64
	nMessagesAssembled uint64
	nMessagesSent      uint64
	nBytesRead         uint64
	nBytesSent         uint64
}

func (s *streamStats) incChunksReceived() {
	atomic.AddUint64(&s.nChunksReceived, 1)
}

func (s *streamStats) incMessagesAssembled() {
	atomic.AddUint64(&s.nMessagesAssembled, 1)
}

func (s *streamStats) incMessagesSent() {
	atomic.AddUint64(&s.nMessagesSent, 1)
}

func (s *streamStats) addBytesRead(n int) {
	atomic.AddUint64(&s.nBytesRead, uint64(n))
}

func (s *streamStats) addBytesSent(n int) {
	atomic.AddUint64(&s.nBytesSent, uint64(n))
}

// StreamStats is a snapshot of a stream's traffic counters.
type StreamStats struct {
	// ChunksReceived is the number of DATA chunks handed to the stream by the
	// association's receive pipeline.
	ChunksReceived uint64
	// MessagesAssembled is the number of complete messages reassembled from
	// the received chunks.
	MessagesAssembled uint64
	// MessagesSent is the number of messages accepted by the write path.
	MessagesSent uint64
	// BytesRead is the number of payload bytes delivered to the reader.
	BytesRead uint64
	// BytesSent is the number of payload bytes accepted by the write path.
	BytesSent uint64
}

func (s *streamStats) snapshot() StreamStats {
	return StreamStats{
		ChunksReceived:    atomic.LoadUint64(&s.nChunksReceived),
		MessagesAssembled: atomic.LoadUint64(&s.nMessagesAssembled),
		MessagesSent:      atomic.LoadUint64(&s.nMessagesSent),
		BytesRead:         atomic.LoadUint64(&s.nBytesRead),
		BytesSent:         atomic.LoadUint64(&s.nBytesSent),
	}
}
