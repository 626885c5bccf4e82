package object

import "testing"

func TestInlineSlotAddrAddsInlineSlotsOffset(t *testing.T) {
	if got := InlineSlotAddr(0); got != InlineSlotsOffset {
		t.Fatalf("InlineSlotAddr(0) = %d, want %d", got, InlineSlotsOffset)
	}
	if got := InlineSlotAddr(8); got != InlineSlotsOffset+8 {
		t.Fatalf("InlineSlotAddr(8) = %d, want %d", got, InlineSlotsOffset+8)
	}
}

func TestOutOfLineSlotAddrIsIdentity(t *testing.T) {
	if got := OutOfLineSlotAddr(24); got != 24 {
		t.Fatalf("OutOfLineSlotAddr(24) = %d, want 24 (a plain byte offset, per Open Question 2)", got)
	}
}
