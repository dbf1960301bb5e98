// Copyright (c) The go-kernel authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"testing"
)

func TestParseGUID(t *testing.T) {
	g, err := ParseGUID("9042a9de-23dc-4a38-96fb-7aded080516a")

	if err != nil {
		t.Fatal(err)
	}

	// EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID in memory
	want := GUID{0xde, 0xa9, 0x42, 0x90, 0xdc, 0x23, 0x38, 0x4a, 0x96, 0xfb, 0x7a, 0xde, 0xd0, 0x80, 0x51, 0x6a}

	if g != want {
		t.Fatalf("got %x, want %x", g, want)
	}

	if g, _ := ParseGUID("9042A9DE-23DC-4A38-96FB-7ADED080516A"); g != want {
		t.Fatalf("upper case: got %x, want %x", g, want)
	}

	for _, s := range []string{
		"",
		"9042a9de-23dc-4a38-96fb",
		"9042a9de23dc4a3896fb7aded080516a",
		"z042a9de-23dc-4a38-96fb-7aded080516a",
		"9042a9de-23dc4-a38-96fb-7aded080516a",
		"9042a9de-23dc-4a38-96fb-7aded080516a-",
	} {
		if _, err := ParseGUID(s); err == nil {
			t.Errorf("ParseGUID(%q): expected error", s)
		}
	}
}

func TestMustParseGUID(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	MustParseGUID("invalid")
}
