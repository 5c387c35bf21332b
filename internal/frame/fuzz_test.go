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

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	t.Helper()
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzParserRandomBytes streams random garbage through the parser
// and verifies it never panics and never emits a frame whose payload
// exceeds the protocol maximum, whatever LENGTH values appear in the
// stream.
func TestFuzzParserRandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		p := NewParser()
		length := rng.Intn(512) + 1
		data := make([]byte, length)
		rng.Read(data)

		for _, b := range data {
			f, _ := p.ProcessByte(b)
			if f != nil && len(f.Payload) > MaxPayloadLen {
				t.Fatalf("round %d: payload length %d exceeds maximum", i, len(f.Payload))
			}
		}
	}
}

// TestFuzzParserOversizedLength builds frames claiming LENGTH above
// the maximum and confirms the parser drops them without touching the
// payload buffer bounds.
func TestFuzzParserOversizedLength(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		p := NewParser()
		claimed := byte(MaxPayloadLen + 1 + rng.Intn(256-MaxPayloadLen-1))
		stream := []byte{StartByte, claimed}
		body := make([]byte, rng.Intn(300))
		rng.Read(body)
		stream = append(stream, body...)

		var emitted int
		for _, b := range stream {
			if f, _ := p.ProcessByte(b); f != nil {
				emitted++
				if len(f.Payload) > MaxPayloadLen {
					t.Fatalf("round %d: oversized payload emitted", i)
				}
			}
		}
		// Whatever follows the rejected header is noise; random bytes
		// must not assemble into runaway state.
		if p.Stats().LengthErrors == 0 {
			t.Fatalf("round %d: oversized LENGTH 0x%02X not counted", i, claimed)
		}
	}
}

// TestFuzzParserInterleavedFrames mixes valid frames with random noise
// and checks every valid frame between noise bursts survives.
func TestFuzzParserInterleavedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		p := NewParser()
		payload := make([]byte, rng.Intn(MaxPayloadLen+1))
		rng.Read(payload)
		typ := byte(rng.Intn(256))
		wire, err := Encode(typ, payload)
		if err != nil {
			t.Fatalf("round %d: Encode() error = %v", i, err)
		}

		// Noise that cannot contain a start byte, then the frame.
		noise := make([]byte, rng.Intn(64))
		for j := range noise {
			noise[j] = byte(rng.Intn(256))
			if noise[j] == StartByte {
				noise[j] = 0x00
			}
		}

		var got *Frame
		for _, b := range append(noise, wire...) {
			if f, _ := p.ProcessByte(b); f != nil {
				got = f
			}
		}
		if got == nil {
			t.Fatalf("round %d: frame lost after %d noise bytes", i, len(noise))
		}
		if got.Type != typ || !bytes.Equal(got.Payload, payload) {
			t.Fatalf("round %d: frame corrupted in flight", i)
		}
	}
}
