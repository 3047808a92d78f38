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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReassemblyQueueOrderedFragments(t *testing.T) {
	rq := newReassemblyQueue(0)

	orgPpi := PayloadTypeWebRTCBinary

	var chunks []*ChunkPayloadData
	chunks = append(chunks, &ChunkPayloadData{
		PayloadType:          orgPpi,
		BeginningFragment:    true,
		TSN:                  1,
		StreamSequenceNumber: 0,
		UserData:             []byte("ABC"),
	})
	chunks = append(chunks, &ChunkPayloadData{
		PayloadType:          orgPpi,
		TSN:                  2,
		StreamSequenceNumber: 0,
		UserData:             []byte("DEFG"),
	})
	chunks = append(chunks, &ChunkPayloadData{
		PayloadType:          orgPpi,
		EndingFragment:       true,
		TSN:                  3,
		StreamSequenceNumber: 0,
		UserData:             []byte("H"),
	})

	assert.False(t, rq.push(chunks[0]), "chunk set should not be complete yet")
	assert.False(t, rq.push(chunks[1]), "chunk set should not be complete yet")
	assert.True(t, rq.push(chunks[2]), "chunk set should now be complete")
	assert.True(t, rq.isReadable(), "should be readable")
	assert.Equal(t, 8, rq.getNumBytes(), "num bytes mismatch")

	buf := make([]byte, 16)
	n, ppi, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, 8, n, "should read all bytes")
	assert.Equal(t, orgPpi, ppi, "ppi should match")
	assert.Equal(t, "ABCDEFGH", string(buf[:n]), "data should match")
	assert.Equal(t, 0, rq.getNumBytes(), "num bytes mismatch")
}

func TestReassemblyQueueOrderedOutOfOrderSSN(t *testing.T) {
	rq := newReassemblyQueue(0)

	assert.True(t, rq.push(&ChunkPayloadData{
		PayloadType:          PayloadTypeWebRTCBinary,
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  11,
		StreamSequenceNumber: 1,
		UserData:             []byte("SECOND"),
	}), "a complete single-chunk message")
	assert.False(t, rq.isReadable(), "ssn 1 must wait for ssn 0")

	assert.True(t, rq.push(&ChunkPayloadData{
		PayloadType:          PayloadTypeWebRTCBinary,
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  10,
		StreamSequenceNumber: 0,
		UserData:             []byte("FIRST"),
	}), "a complete single-chunk message")
	assert.True(t, rq.isReadable(), "ssn 0 arrived, readable now")

	buf := make([]byte, 16)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "FIRST", string(buf[:n]), "ssn 0 should be delivered first")

	n, _, err = rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "SECOND", string(buf[:n]), "ssn 1 should be delivered second")

	_, _, err = rq.read(buf)
	assert.Equal(t, errTryAgain, err, "queue should be drained")
}

func TestReassemblyQueueUnorderedFragments(t *testing.T) {
	rq := newReassemblyQueue(0)

	// Middle fragment arrives first, then the beginning, then the end.
	assert.False(t, rq.push(&ChunkPayloadData{
		PayloadType: PayloadTypeWebRTCBinary,
		Unordered:   true,
		TSN:         2,
		UserData:    []byte("DEF"),
	}), "still incomplete")
	assert.False(t, rq.push(&ChunkPayloadData{
		PayloadType:       PayloadTypeWebRTCBinary,
		Unordered:         true,
		BeginningFragment: true,
		TSN:               1,
		UserData:          []byte("ABC"),
	}), "still incomplete")
	assert.True(t, rq.push(&ChunkPayloadData{
		PayloadType:    PayloadTypeWebRTCBinary,
		Unordered:      true,
		EndingFragment: true,
		TSN:            3,
		UserData:       []byte("GH"),
	}), "fragment set complete")

	buf := make([]byte, 16)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "ABCDEFGH", string(buf[:n]), "data should match")
	assert.Equal(t, 0, rq.getNumBytes(), "num bytes mismatch")
}

func TestReassemblyQueueUnorderedCompleteSkipsOrder(t *testing.T) {
	rq := newReassemblyQueue(0)

	// An unordered message is deliverable regardless of other messages.
	assert.True(t, rq.push(&ChunkPayloadData{
		PayloadType:       PayloadTypeWebRTCBinary,
		Unordered:         true,
		BeginningFragment: true,
		EndingFragment:    true,
		TSN:               7,
		UserData:          []byte("LATE"),
	}), "single-chunk message complete")
	assert.True(t, rq.isReadable(), "unordered message readable immediately")

	buf := make([]byte, 16)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "LATE", string(buf[:n]), "data should match")
}

func TestReassemblyQueueRejectsForeignStream(t *testing.T) {
	rq := newReassemblyQueue(123)

	assert.False(t, rq.push(&ChunkPayloadData{
		StreamIdentifier:  124,
		BeginningFragment: true,
		EndingFragment:    true,
		TSN:               1,
		UserData:          []byte("ABC"),
	}), "chunk of another stream must be rejected")
	assert.Equal(t, 0, rq.getNumBytes(), "nothing should be buffered")
}

func TestReassemblyQueueRejectsDuplicateTSN(t *testing.T) {
	t.Run("unordered", func(t *testing.T) {
		rq := newReassemblyQueue(0)

		chunk := &ChunkPayloadData{
			Unordered:         true,
			BeginningFragment: true,
			EndingFragment:    true,
			TSN:               1,
			UserData:          []byte("AB"),
		}
		assert.True(t, rq.push(chunk), "first copy accepted")
		assert.False(t, rq.push(&ChunkPayloadData{
			Unordered:         true,
			BeginningFragment: true,
			EndingFragment:    true,
			TSN:               1,
			UserData:          []byte("AB"),
		}), "duplicate TSN dropped")
		assert.Equal(t, 2, rq.getNumBytes(), "duplicate must not be counted")
	})

	t.Run("ordered", func(t *testing.T) {
		rq := newReassemblyQueue(0)

		assert.True(t, rq.push(&ChunkPayloadData{
			BeginningFragment:    true,
			EndingFragment:       true,
			TSN:                  10,
			StreamSequenceNumber: 0,
			UserData:             []byte("AB"),
		}), "first copy accepted")
		assert.False(t, rq.push(&ChunkPayloadData{
			BeginningFragment:    true,
			EndingFragment:       true,
			TSN:                  10,
			StreamSequenceNumber: 0,
			UserData:             []byte("AB"),
		}), "duplicate TSN dropped")
		assert.Equal(t, 2, rq.getNumBytes(), "duplicate must not be counted")
	})
}

func TestReassemblyQueueRejectsOldSSN(t *testing.T) {
	rq := newReassemblyQueue(0)

	assert.True(t, rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  10,
		StreamSequenceNumber: 0,
		UserData:             []byte("AB"),
	}), "accepted")

	buf := make([]byte, 16)
	_, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")

	assert.False(t, rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  11,
		StreamSequenceNumber: 0,
		UserData:             []byte("AB"),
	}), "ssn below nextSSN must be rejected")
	assert.Equal(t, 0, rq.getNumBytes(), "nothing should be buffered")
}

func TestReassemblyQueuePartialRead(t *testing.T) {
	rq := newReassemblyQueue(0)

	assert.True(t, rq.push(&ChunkPayloadData{
		PayloadType:          PayloadTypeWebRTCBinary,
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  1,
		StreamSequenceNumber: 0,
		UserData:             []byte("0123456789"),
	}), "complete message")

	buf := make([]byte, 4)

	n, ppi, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "0123", string(buf[:n]), "head of the message")
	assert.Equal(t, PayloadTypeWebRTCBinary, ppi, "ppi should match")
	assert.Equal(t, 6, rq.getNumBytes(), "remainder still buffered")
	assert.True(t, rq.isReadable(), "remainder is readable")

	n, _, err = rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "4567", string(buf[:n]), "middle of the message")

	n, _, err = rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "89", string(buf[:n]), "tail of the message")
	assert.Equal(t, 0, rq.getNumBytes(), "fully drained")

	_, _, err = rq.read(buf)
	assert.Equal(t, errTryAgain, err, "queue should be drained")
}

func TestReassemblyQueuePartialReadAcrossFragments(t *testing.T) {
	rq := newReassemblyQueue(0)

	rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		TSN:                  1,
		StreamSequenceNumber: 0,
		UserData:             []byte("ABC"),
	})
	assert.True(t, rq.push(&ChunkPayloadData{
		EndingFragment:       true,
		TSN:                  2,
		StreamSequenceNumber: 0,
		UserData:             []byte("DEF"),
	}), "fragment set complete")

	buf := make([]byte, 2)
	var out []byte
	for i := 0; i < 3; i++ {
		n, _, err := rq.read(buf)
		assert.NoError(t, err, "read should succeed")
		assert.Equal(t, 2, n, "each read fills the buffer")
		out = append(out, buf[:n]...)
	}
	assert.Equal(t, "ABCDEF", string(out), "drain crosses fragment boundaries")
}

func TestReassemblyQueueDoesNotCoalesceMessages(t *testing.T) {
	rq := newReassemblyQueue(0)

	rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  1,
		StreamSequenceNumber: 0,
		UserData:             []byte("AAAA"),
	})
	rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  2,
		StreamSequenceNumber: 1,
		UserData:             []byte("BBBB"),
	})

	buf := make([]byte, 8)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "AAAA", string(buf[:n]), "only the first message")

	n, _, err = rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "BBBB", string(buf[:n]), "then the second")
}

func TestReassemblyQueueForwardTSNForOrdered(t *testing.T) {
	rq := newReassemblyQueue(0)

	// ssn 0 stays incomplete, ssn 1 is complete but gated behind it.
	rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		TSN:                  1,
		StreamSequenceNumber: 0,
		UserData:             []byte("AB"),
	})
	assert.True(t, rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  3,
		StreamSequenceNumber: 1,
		UserData:             []byte("CD"),
	}), "complete message")
	assert.False(t, rq.isReadable(), "gated behind the incomplete ssn 0")
	assert.Equal(t, 4, rq.getNumBytes(), "num bytes mismatch")

	rq.forwardTSNForOrdered(0)

	assert.Equal(t, uint16(1), rq.nextSSN, "nextSSN should advance past the abandoned message")
	assert.Equal(t, 2, rq.getNumBytes(), "abandoned fragments evicted")
	assert.True(t, rq.isReadable(), "ssn 1 deliverable now")

	buf := make([]byte, 16)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "CD", string(buf[:n]), "data should match")
}

func TestReassemblyQueueForwardTSNForUnordered(t *testing.T) {
	rq := newReassemblyQueue(0)

	// TSN 4 is the begin fragment of a message whose tail never arrives.
	rq.push(&ChunkPayloadData{
		Unordered:         true,
		BeginningFragment: true,
		TSN:               4,
		UserData:          []byte("AB"),
	})
	assert.True(t, rq.push(&ChunkPayloadData{
		Unordered:         true,
		BeginningFragment: true,
		EndingFragment:    true,
		TSN:               7,
		UserData:          []byte("CD"),
	}), "complete message")
	assert.Equal(t, 4, rq.getNumBytes(), "num bytes mismatch")

	rq.forwardTSNForUnordered(5)

	assert.Equal(t, 2, rq.getNumBytes(), "abandoned fragments evicted")
	assert.Empty(t, rq.unorderedChunks, "no dangling fragments")

	buf := make([]byte, 16)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "CD", string(buf[:n]), "the complete message is unaffected")
}

func TestReassemblyQueueSSNWraparound(t *testing.T) {
	rq := newReassemblyQueue(0)
	rq.nextSSN = 65535

	assert.True(t, rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  1,
		StreamSequenceNumber: 65535,
		UserData:             []byte("LAST"),
	}), "complete message")
	assert.True(t, rq.push(&ChunkPayloadData{
		BeginningFragment:    true,
		EndingFragment:       true,
		TSN:                  2,
		StreamSequenceNumber: 0,
		UserData:             []byte("WRAP"),
	}), "complete message")

	buf := make([]byte, 16)
	n, _, err := rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "LAST", string(buf[:n]), "ssn 65535 first")
	assert.Equal(t, uint16(0), rq.nextSSN, "nextSSN wraps to 0")

	n, _, err = rq.read(buf)
	assert.NoError(t, err, "read should succeed")
	assert.Equal(t, "WRAP", string(buf[:n]), "ssn 0 after the wrap")
}
