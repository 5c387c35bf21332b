// crowlink
// Copyright (c) 2025 The CrowDisplay Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of crowlink.
//
// crowlink is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// crowlink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with crowlink; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package frame

type parseState int

const (
	waitStart parseState = iota
	readLength
	readType
	readPayload
	readCRC
)

// Stats counts parser outcomes since construction.
type Stats struct {
	// Frames is the number of fully validated frames emitted.
	Frames uint64
	// CRCErrors counts candidate frames dropped on checksum mismatch.
	CRCErrors uint64
	// LengthErrors counts frames dropped for an out-of-range LENGTH.
	LengthErrors uint64
	// DiscardedBytes counts bytes skipped while hunting for START.
	DiscardedBytes uint64
}

// Parser reassembles frames from a continuous byte stream, one byte
// per state transition. It holds exactly one in-progress frame and is
// not safe for concurrent use.
type Parser struct {
	pending []byte
	budget  int
	state   parseState
	length  int
	filled  int
	typ     byte
	payload [MaxPayloadLen]byte
	stats   Stats
}

// ParserOption adjusts parser construction.
type ParserOption func(*Parser)

// WithYieldBudget caps the bytes consumed per Poll call.
func WithYieldBudget(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.budget = n
		}
	}
}

// NewParser returns a parser in the hunting state with an empty carry
// buffer.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{budget: DefaultYieldBudget}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessByte advances the state machine by one byte. It returns a
// completed frame, an error for a dropped candidate, or neither while
// mid-frame. After any error the parser is back in the hunting state;
// it never resynchronizes inside a payload.
func (p *Parser) ProcessByte(b byte) (*Frame, error) {
	switch p.state {
	case waitStart:
		if b != StartByte {
			p.stats.DiscardedBytes++
			return nil, nil
		}
		p.state = readLength
	case readLength:
		// Out-of-range LENGTH is rejected before any payload byte is
		// stored. Entering readPayload here would index past the
		// fixed payload array.
		if int(b) > MaxPayloadLen {
			p.stats.LengthErrors++
			p.state = waitStart
			return nil, ErrLengthRange
		}
		p.length = int(b)
		p.filled = 0
		p.state = readType
	case readType:
		p.typ = b
		if p.length == 0 {
			p.state = readCRC
		} else {
			p.state = readPayload
		}
	case readPayload:
		p.payload[p.filled] = b
		p.filled++
		if p.filled == p.length {
			p.state = readCRC
		}
	case readCRC:
		p.state = waitStart
		if Checksum(byte(p.length), p.typ, p.payload[:p.length]) != b {
			p.stats.CRCErrors++
			return nil, ErrCRC
		}
		p.stats.Frames++
		f := &Frame{Type: p.typ, Payload: make([]byte, p.length)}
		copy(f.Payload, p.payload[:p.length])
		return f, nil
	}
	return nil, nil
}

// Feed appends raw received bytes to the carry buffer without parsing
// them. Poll consumes them under the yield budget.
func (p *Parser) Feed(data []byte) {
	p.pending = append(p.pending, data...)
}

// Poll consumes at most the yield budget of buffered bytes and returns
// the first completed frame or drop error it hits, leaving the rest
// for the next call. It returns (nil, nil) when the buffer runs dry or
// the budget is spent mid-frame.
func (p *Parser) Poll() (*Frame, error) {
	limit := p.budget
	if limit > len(p.pending) {
		limit = len(p.pending)
	}
	var (
		f        *Frame
		err      error
		consumed int
	)
	for consumed < limit {
		f, err = p.ProcessByte(p.pending[consumed])
		consumed++
		if f != nil || err != nil {
			break
		}
	}
	p.pending = append(p.pending[:0], p.pending[consumed:]...)
	return f, err
}

// Pending reports how many fed bytes await parsing.
func (p *Parser) Pending() int {
	return len(p.pending)
}

// Stats returns a snapshot of the parser counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

// Reset drops the in-progress frame and the carry buffer, returning
// the parser to the hunting state. Counters are preserved.
func (p *Parser) Reset() {
	p.state = waitStart
	p.length = 0
	p.filled = 0
	p.pending = p.pending[:0]
}
