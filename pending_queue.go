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
	"sync"

	"github.com/pkg/errors"
)

// pendingBaseQueue

type pendingBaseQueue struct {
	queue []*ChunkPayloadData
}

func newPendingBaseQueue() *pendingBaseQueue {
	return &pendingBaseQueue{queue: []*ChunkPayloadData{}}
}

func (q *pendingBaseQueue) push(c *ChunkPayloadData) {
	q.queue = append(q.queue, c)
}

func (q *pendingBaseQueue) pop() *ChunkPayloadData {
	if len(q.queue) == 0 {
		return nil
	}
	c := q.queue[0]
	q.queue = q.queue[1:]
	return c
}

func (q *pendingBaseQueue) get(i int) *ChunkPayloadData {
	if len(q.queue) == 0 || i < 0 || i >= len(q.queue) {
		return nil
	}
	return q.queue[i]
}

func (q *pendingBaseQueue) size() int {
	return len(q.queue)
}

// PendingQueue is the association-wide backlog of outbound chunks awaiting
// transmission. Every stream of the association pushes into the same queue;
// the association's send loop peeks and pops from it. All operations are safe
// under concurrent use from multiple streams.
//
// Once the first fragment of a fragmented message has been popped, the queue
// stays selected on that message's lane (ordered or unordered) until its
// ending fragment is popped, so a message's fragments are never interleaved
// with chunks of the other lane.
type PendingQueue struct {
	mutex               sync.Mutex
	unorderedQueue      *pendingBaseQueue
	orderedQueue        *pendingBaseQueue
	nBytes              int
	selected            bool
	unorderedIsSelected bool
}

var (
	errUnexpectedChuckPoppedUnordered = errors.New("unexpected chunk popped (unordered)")
	errUnexpectedChuckPoppedOrdered   = errors.New("unexpected chunk popped (ordered)")
	errUnexpectedQState               = errors.New("unexpected q state (should've been selected)")
)

// NewPendingQueue creates a new PendingQueue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{
		unorderedQueue: newPendingBaseQueue(),
		orderedQueue:   newPendingBaseQueue(),
	}
}

// Push enqueues outbound chunks on the lane matching their ordering flag.
// The fragments of one message must be pushed in a single call: the whole set
// is appended under one lock hold, so concurrent pushers cannot interleave
// their fragment runs within a lane and Pop always sees runs contiguous.
func (q *PendingQueue) Push(chunks ...*ChunkPayloadData) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, c := range chunks {
		if c.Unordered {
			q.unorderedQueue.push(c)
		} else {
			q.orderedQueue.push(c)
		}
		q.nBytes += len(c.UserData)
	}
}

// Peek returns the chunk the send loop should transmit next, or nil when the
// queue is empty. The chunk stays queued until Pop.
func (q *PendingQueue) Peek() *ChunkPayloadData {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.selected {
		if q.unorderedIsSelected {
			return q.unorderedQueue.get(0)
		}
		return q.orderedQueue.get(0)
	}

	if c := q.unorderedQueue.get(0); c != nil {
		return c
	}
	return q.orderedQueue.get(0)
}

// Pop removes the chunk previously returned by Peek. Passing a chunk other
// than the current head is a misuse of the queue and returns an error.
func (q *PendingQueue) Pop(c *ChunkPayloadData) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.selected {
		var popped *ChunkPayloadData
		if q.unorderedIsSelected {
			popped = q.unorderedQueue.pop()
			if popped != c {
				return errUnexpectedChuckPoppedUnordered
			}
		} else {
			popped = q.orderedQueue.pop()
			if popped != c {
				return errUnexpectedChuckPoppedOrdered
			}
		}
		if popped.EndingFragment {
			q.selected = false
		}
	} else {
		if !c.BeginningFragment {
			return errUnexpectedQState
		}
		if c.Unordered {
			popped := q.unorderedQueue.pop()
			if popped != c {
				return errUnexpectedChuckPoppedUnordered
			}
			if !popped.EndingFragment {
				q.selected = true
				q.unorderedIsSelected = true
			}
		} else {
			popped := q.orderedQueue.pop()
			if popped != c {
				return errUnexpectedChuckPoppedOrdered
			}
			if !popped.EndingFragment {
				q.selected = true
				q.unorderedIsSelected = false
			}
		}
	}
	q.nBytes -= len(c.UserData)
	return nil
}

// GetNumBytes returns the total payload bytes of all queued chunks.
func (q *PendingQueue) GetNumBytes() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.nBytes
}

// Size returns the number of queued chunks.
func (q *PendingQueue) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.unorderedQueue.size() + q.orderedQueue.size()
}
