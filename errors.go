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

package crowlink

import (
	"errors"
	"fmt"
)

// Sentinel errors for link and transport conditions.
var (
	// ErrTransportTimeout indicates a transport operation timed out.
	ErrTransportTimeout = errors.New("transport operation timed out")
	// ErrTransportRead indicates a read from the transport failed.
	ErrTransportRead = errors.New("transport read failed")
	// ErrTransportWrite indicates a write to the transport failed.
	ErrTransportWrite = errors.New("transport write failed")
	// ErrTransportNotReady indicates the transport is not yet usable.
	ErrTransportNotReady = errors.New("transport not ready")
	// ErrCommunicationFailed indicates a general exchange failure.
	ErrCommunicationFailed = errors.New("communication failed")
	// ErrFrameCorrupted indicates a frame failed structural validation.
	ErrFrameCorrupted = errors.New("frame corrupted")
	// ErrChecksumMismatch indicates a frame failed its CRC check.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrNoACK indicates a command exhausted its retry budget without
	// a matching acknowledgment.
	ErrNoACK = errors.New("no acknowledgment received")
	// ErrLinkDown indicates the peer has not been heard within the
	// link timeout.
	ErrLinkDown = errors.New("link down")
	// ErrQueueFull indicates the pending-command table is full.
	ErrQueueFull = errors.New("pending command queue full")
	// ErrDeviceNotFound indicates no companion device was detected.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDataTooLarge indicates a payload exceeds the frame maximum.
	ErrDataTooLarge = errors.New("data too large for frame")
	// ErrInvalidParameter indicates an argument outside its legal range.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnknownType indicates a message type outside the known set.
	ErrUnknownType = errors.New("unknown message type")
	// ErrPayloadSize indicates a payload whose length does not match
	// its message type.
	ErrPayloadSize = errors.New("payload size does not match message type")
	// ErrChannelRange indicates a radio channel outside 1..14.
	ErrChannelRange = errors.New("radio channel out of range")
	// ErrRadioMode indicates a radio mode transition failed.
	ErrRadioMode = errors.New("radio mode transition failed")
)

// ErrorType classifies errors for retry decisions.
type ErrorType int

const (
	// ErrorTypePermanent marks errors retrying cannot fix.
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient marks errors expected to clear on their own.
	ErrorTypeTransient
	// ErrorTypeTimeout marks elapsed-deadline errors.
	ErrorTypeTimeout
)

// String returns the classification name.
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// TransportError wraps a transport failure with the operation and port
// it occurred on plus its retry classification.
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError with retryability derived
// from the classification.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError builds a retryable timeout TransportError.
func NewTimeoutError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrTransportTimeout,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// NewFrameCorruptedError builds a retryable corruption TransportError.
func NewFrameCorruptedError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrFrameCorrupted,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// NewNoACKError builds a retryable missing-acknowledgment TransportError.
func NewNoACKError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrNoACK,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// NewDataTooLargeError builds a permanent oversize TransportError.
func NewDataTooLargeError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrDataTooLarge,
		Type:      ErrorTypePermanent,
		Retryable: false,
	}
}

// NewTransportNotReadyError builds a retryable not-ready TransportError.
func NewTransportNotReadyError(op, port string) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrTransportNotReady,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// retryableSentinels are the conditions worth retrying as-is.
var retryableSentinels = []error{
	ErrTransportTimeout,
	ErrTransportRead,
	ErrTransportWrite,
	ErrTransportNotReady,
	ErrCommunicationFailed,
	ErrFrameCorrupted,
	ErrChecksumMismatch,
	ErrNoACK,
	ErrLinkDown,
	ErrQueueFull,
}

// IsRetryable reports whether err is worth retrying. A TransportError
// answers for itself; sentinel errors are matched with errors.Is so
// wrapped values classify correctly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// GetErrorType classifies err. Unknown errors are treated as permanent
// so blind retries never loop on them.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}
	if errors.Is(err, ErrTransportTimeout) {
		return ErrorTypeTimeout
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}
