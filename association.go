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

// AssociationState is an enum for the state of the association hosting the
// streams.
type AssociationState uint32

// AssociationState enums
const (
	AssociationStateClosed AssociationState = iota
	AssociationStateCookieWait
	AssociationStateCookieEchoed
	AssociationStateEstablished
	AssociationStateShutdownAckSent
	AssociationStateShutdownPending
	AssociationStateShutdownReceived
	AssociationStateShutdownSent
)

func (a AssociationState) String() string {
	switch a {
	case AssociationStateClosed:
		return "Closed"
	case AssociationStateCookieWait:
		return "CookieWait"
	case AssociationStateCookieEchoed:
		return "CookieEchoed"
	case AssociationStateEstablished:
		return "Established"
	case AssociationStateShutdownPending:
		return "ShutdownPending"
	case AssociationStateShutdownSent:
		return "ShutdownSent"
	case AssociationStateShutdownReceived:
		return "ShutdownReceived"
	case AssociationStateShutdownAckSent:
		return "ShutdownAckSent"
	default:
		return fmt.Sprintf("Invalid association state %d", uint32(a))
	}
}

// Association is the surface of the parent connection a stream depends on:
// the negotiated maximum message size and a snapshot of the connection state.
// The stream consults the state only as an opaque gate on writes; everything
// else about the association (handshake, retransmission, congestion control,
// SACK generation) stays on the other side of this interface.
//
// Implementations must be safe for concurrent use.
type Association interface {
	// MaxMessageSize returns the maximum message size you can send.
	MaxMessageSize() uint32

	// State returns the current state of the association.
	State() AssociationState
}
