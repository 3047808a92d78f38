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
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
)

func sortChunksByTSN(a []*ChunkPayloadData) {
	sort.Slice(a, func(i, j int) bool {
		return sna32LT(a[i].TSN, a[j].TSN)
	})
}

func sortChunkSetsBySSN(a []*chunkSet) {
	sort.Slice(a, func(i, j int) bool {
		return sna16LT(a[i].ssn, a[j].ssn)
	})
}

// chunkSet is a set of chunks that share the same SSN
type chunkSet struct {
	ssn    uint16 // used only with the ordered chunks
	ppi    PayloadProtocolIdentifier
	chunks []*ChunkPayloadData
}

func newChunkSet(ssn uint16, ppi PayloadProtocolIdentifier) *chunkSet {
	return &chunkSet{
		ssn:    ssn,
		ppi:    ppi,
		chunks: []*ChunkPayloadData{},
	}
}

// push adds the chunk to the set unless its TSN is already present.
func (set *chunkSet) push(chunk *ChunkPayloadData) bool {
	for _, c := range set.chunks {
		if c.TSN == chunk.TSN {
			return false
		}
	}

	set.chunks = append(set.chunks, chunk)
	sortChunksByTSN(set.chunks)
	return true
}

func (set *chunkSet) isComplete() bool {
	// Condition for complete set
	//   0. Has at least one chunk.
	//   1. Begins with beginningFragment set to true
	//   2. Ends with endingFragment set to true
	//   3. TSN monotinically increase by 1 from beginning to end

	// 0.
	nChunks := len(set.chunks)
	if nChunks == 0 {
		return false
	}

	// 1.
	if !set.chunks[0].BeginningFragment {
		return false
	}

	// 2.
	if !set.chunks[nChunks-1].EndingFragment {
		return false
	}

	// 3.
	var lastTSN uint32
	for i, c := range set.chunks {
		if i > 0 {
			// Fragments must have contiguous TSN
			// From RFC 4960 Section 3.3.1:
			//   When a user message is fragmented into multiple chunks, the TSNs are
			//   used by the receiver to reassemble the message.  This means that the
			//   TSNs for each fragment of a fragmented user message MUST be strictly
			//   sequential.
			if c.TSN != lastTSN+1 {
				// mid or end fragment is missing
				return false
			}
		}

		lastTSN = c.TSN
	}

	return true
}

// size returns the total payload bytes of the set.
func (set *chunkSet) size() int {
	n := 0
	for _, c := range set.chunks {
		n += len(c.UserData)
	}
	return n
}

type reassemblyQueue struct {
	si              uint16
	nextSSN         uint16 // expected SSN for next ordered chunk
	ordered         []*chunkSet
	unordered       []*chunkSet
	unorderedChunks []*ChunkPayloadData
	nBytes          uint64

	// The message currently being drained by the reader. A short read buffer
	// consumes only part of it; the remainder stays here for the next read.
	active       *chunkSet
	activeOffset int
}

var errTryAgain = errors.New("try again")

func newReassemblyQueue(si uint16) *reassemblyQueue {
	// From RFC 4960 Sec 6.5:
	//   The Stream Sequence Number in all the streams MUST start from 0 when
	//   the association is established.  Also, when the Stream Sequence
	//   Number reaches the value 65535 the next Stream Sequence Number MUST
	//   be set to 0.
	return &reassemblyQueue{
		si:        si,
		nextSSN:   0,
		ordered:   make([]*chunkSet, 0),
		unordered: make([]*chunkSet, 0),
	}
}

func (r *reassemblyQueue) push(chunk *ChunkPayloadData) bool {
	var cset *chunkSet

	if chunk.StreamIdentifier != r.si {
		return false
	}

	if chunk.Unordered {
		// Drop duplicate TSNs. The fragment scan below requires strictly
		// sequential TSNs and a duplicate would split the run.
		for _, c := range r.unorderedChunks {
			if c.TSN == chunk.TSN {
				return false
			}
		}

		// First, insert into unorderedChunks array
		r.unorderedChunks = append(r.unorderedChunks, chunk)
		atomic.AddUint64(&r.nBytes, uint64(len(chunk.UserData)))
		sortChunksByTSN(r.unorderedChunks)

		// Scan unorderedChunks that are contiguous (in TSN)
		cset = r.findCompleteUnorderedChunkSet()

		// If found, append the complete set to the unordered array
		if cset != nil {
			r.unordered = append(r.unordered, cset)
			return true
		}

		return false
	}

	// This is an ordered chunk

	if sna16LT(chunk.StreamSequenceNumber, r.nextSSN) {
		return false
	}

	// Check if a chunkSet with the SSN already exists
	for _, set := range r.ordered {
		if set.ssn == chunk.StreamSequenceNumber {
			cset = set
			break
		}
	}

	// If not found, create a new chunkSet
	if cset == nil {
		cset = newChunkSet(chunk.StreamSequenceNumber, chunk.PayloadType)
		r.ordered = append(r.ordered, cset)
		sortChunkSetsBySSN(r.ordered)
	}

	if !cset.push(chunk) {
		// duplicate TSN within the set
		return false
	}
	atomic.AddUint64(&r.nBytes, uint64(len(chunk.UserData)))

	return cset.isComplete()
}

func (r *reassemblyQueue) findCompleteUnorderedChunkSet() *chunkSet {
	startIdx := -1
	nChunks := 0
	var lastTSN uint32
	var found bool

	for i, c := range r.unorderedChunks {
		// seek beigining
		if c.BeginningFragment {
			startIdx = i
			nChunks = 1
			lastTSN = c.TSN

			if c.EndingFragment {
				found = true
				break
			}
			continue
		}

		if startIdx < 0 {
			continue
		}

		// Check if contiguous in TSN
		if c.TSN != lastTSN+1 {
			startIdx = -1
			continue
		}

		lastTSN = c.TSN
		nChunks++

		if c.EndingFragment {
			found = true
			break
		}
	}

	if !found {
		return nil
	}

	// Extract the range of chunks
	var chunks []*ChunkPayloadData
	chunks = append(chunks, r.unorderedChunks[startIdx:startIdx+nChunks]...)

	r.unorderedChunks = append(
		r.unorderedChunks[:startIdx],
		r.unorderedChunks[startIdx+nChunks:]...)

	chunkSet := newChunkSet(0, chunks[0].PayloadType)
	chunkSet.chunks = chunks

	return chunkSet
}

func (r *reassemblyQueue) isReadable() bool {
	// A partially drained message is always readable.
	if r.active != nil {
		return true
	}

	// Check unordered first
	if len(r.unordered) > 0 {
		// The chunk sets in r.unordered should all be complete.
		return true
	}

	// Check ordered sets
	if len(r.ordered) > 0 {
		cset := r.ordered[0]
		if cset.isComplete() {
			if sna16LTE(cset.ssn, r.nextSSN) {
				return true
			}
		}
	}
	return false
}

// read copies up to len(buf) bytes of the next deliverable message into buf.
// Messages are never coalesced: a short buffer yields only the head of the
// message and the remainder is returned by subsequent reads.
func (r *reassemblyQueue) read(buf []byte) (int, PayloadProtocolIdentifier, error) {
	if r.active == nil {
		var cset *chunkSet
		// Check unordered first
		switch {
		case len(r.unordered) > 0:
			cset = r.unordered[0]
			r.unordered = r.unordered[1:]
		case len(r.ordered) > 0:
			// Now, check ordered
			cset = r.ordered[0]
			if !cset.isComplete() {
				return 0, 0, errTryAgain
			}
			if sna16GT(cset.ssn, r.nextSSN) {
				return 0, 0, errTryAgain
			}
			r.ordered = r.ordered[1:]
			if cset.ssn == r.nextSSN {
				r.nextSSN++
			}
		default:
			return 0, 0, errTryAgain
		}

		r.active = cset
		r.activeOffset = 0
	}

	// Copy from the drain offset onward, fragment by fragment. The chunks are
	// shared with the association, so the cursor lives here rather than in
	// the chunk payloads.
	nWritten := 0
	ppi := r.active.ppi
	offset := r.activeOffset
	for _, c := range r.active.chunks {
		if nWritten == len(buf) {
			break
		}
		if offset >= len(c.UserData) {
			offset -= len(c.UserData)
			continue
		}
		n := copy(buf[nWritten:], c.UserData[offset:])
		nWritten += n
		offset = 0
	}

	r.activeOffset += nWritten
	r.subtractNumBytes(nWritten)

	if r.activeOffset >= r.active.size() {
		r.active = nil
		r.activeOffset = 0
	}

	return nWritten, ppi, nil
}

func (r *reassemblyQueue) forwardTSNForOrdered(lastSSN uint16) {
	// Use lastSSN to locate a chunkSet then remove it if the set has
	// not been complete
	keep := []*chunkSet{}
	for _, set := range r.ordered {
		if sna16LTE(set.ssn, lastSSN) {
			if !set.isComplete() {
				// drop the set
				for _, c := range set.chunks {
					r.subtractNumBytes(len(c.UserData))
				}
				continue
			}
		}
		keep = append(keep, set)
	}
	r.ordered = keep

	// Finally, forward nextSSN
	if sna16LTE(r.nextSSN, lastSSN) {
		r.nextSSN = lastSSN + 1
	}
}

func (r *reassemblyQueue) forwardTSNForUnordered(newCumulativeTSN uint32) {
	// Remove all fragments in the unordered sets that contains chunks
	// equal to or older than `newCumulativeTSN`.
	// We know all sets in the r.unordered are complete ones.
	// Just remove chunks that are equal to or older than newCumulativeTSN
	// from the unorderedChunks
	lastIdx := -1
	for i, c := range r.unorderedChunks {
		if sna32GT(c.TSN, newCumulativeTSN) {
			break
		}
		lastIdx = i
	}
	if lastIdx >= 0 {
		for _, c := range r.unorderedChunks[0 : lastIdx+1] {
			r.subtractNumBytes(len(c.UserData))
		}
		r.unorderedChunks = r.unorderedChunks[lastIdx+1:]
	}
}

func (r *reassemblyQueue) subtractNumBytes(nBytes int) {
	cur := atomic.LoadUint64(&r.nBytes)
	if int(cur) >= nBytes {
		atomic.AddUint64(&r.nBytes, -uint64(nBytes))
	} else {
		atomic.StoreUint64(&r.nBytes, 0)
	}
}

func (r *reassemblyQueue) getNumBytes() int {
	// No lock is required as it reads the size with atomic load function.
	return int(atomic.LoadUint64(&r.nBytes))
}
