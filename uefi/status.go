// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
)

// EFI_STATUS error bit
const errorBit = 1 << 63

// EFI_STATUS codes
const (
	EFI_SUCCESS            = 0
	EFI_LOAD_ERROR         = 1
	EFI_INVALID_PARAMETER  = 2
	EFI_UNSUPPORTED        = 3
	EFI_BAD_BUFFER_SIZE    = 4
	EFI_BUFFER_TOO_SMALL   = 5
	EFI_NOT_READY          = 6
	EFI_DEVICE_ERROR       = 7
	EFI_WRITE_PROTECTED    = 8
	EFI_OUT_OF_RESOURCES   = 9
	EFI_NOT_FOUND          = 14
	EFI_ACCESS_DENIED      = 15
	EFI_ABORTED            = 21
	EFI_SECURITY_VIOLATION = 26
)

var statusNames = map[uint64]string{
	EFI_LOAD_ERROR:         "EFI_LOAD_ERROR",
	EFI_INVALID_PARAMETER:  "EFI_INVALID_PARAMETER",
	EFI_UNSUPPORTED:        "EFI_UNSUPPORTED",
	EFI_BAD_BUFFER_SIZE:    "EFI_BAD_BUFFER_SIZE",
	EFI_BUFFER_TOO_SMALL:   "EFI_BUFFER_TOO_SMALL",
	EFI_NOT_READY:          "EFI_NOT_READY",
	EFI_DEVICE_ERROR:       "EFI_DEVICE_ERROR",
	EFI_WRITE_PROTECTED:    "EFI_WRITE_PROTECTED",
	EFI_OUT_OF_RESOURCES:   "EFI_OUT_OF_RESOURCES",
	EFI_NOT_FOUND:          "EFI_NOT_FOUND",
	EFI_ACCESS_DENIED:      "EFI_ACCESS_DENIED",
	EFI_ABORTED:            "EFI_ABORTED",
	EFI_SECURITY_VIOLATION: "EFI_SECURITY_VIOLATION",
}

// StatusError represents a failed EFI service invocation.
type StatusError struct {
	Status uint64
}

// Code returns the EFI_STATUS code without the error bit.
func (e *StatusError) Code() uint64 {
	return e.Status &^ errorBit
}

func (e *StatusError) Error() string {
	if name, ok := statusNames[e.Code()]; ok {
		return fmt.Sprintf("EFI_STATUS error %s (%#x)", name, e.Status)
	}

	return fmt.Sprintf("EFI_STATUS error %#x (%d)", e.Status, e.Code())
}

func parseStatus(status uint64) (err error) {
	if status == EFI_SUCCESS {
		return
	}

	return &StatusError{Status: status}
}
