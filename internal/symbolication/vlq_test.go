package symbolication

import "testing"

func TestVLQRoundTrip(t *testing.T) {
	values := []int{0, 1, -1, 15, -15, 16, -16, 31, 32, 123456, -987654}
	for _, v := range values {
		seg := vlqEncode(v)
		got := vlqDecode(seg)
		if len(got) != 1 || got[0] != v {
			t.Errorf("round trip of %d via %q: got %v", v, seg, got)
		}
	}
}

func TestVLQDecode_KnownSegments(t *testing.T) {
	tests := []struct {
		segment  string
		expected []int
	}{
		{"A", []int{0}},
		{"C", []int{1}},
		{"D", []int{-1}},
		// Classic 4-tuple segment from real source maps.
		{"AAAA", []int{0, 0, 0, 0}},
		{"AACA", []int{0, 0, 1, 0}},
	}
	for _, tt := range tests {
		got := vlqDecode(tt.segment)
		if len(got) != len(tt.expected) {
			t.Errorf("decode %q: expected %v, got %v", tt.segment, tt.expected, got)
			continue
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("decode %q: expected %v, got %v", tt.segment, tt.expected, got)
				break
			}
		}
	}
}

func TestVLQDecode_Continuation(t *testing.T) {
	// 16 does not fit in 5 payload bits, so its encoding uses two units.
	seg := vlqEncode(16)
	if len(seg) != 2 {
		t.Fatalf("expected 2-char encoding for 16, got %q", seg)
	}
	if got := vlqDecode(seg); len(got) != 1 || got[0] != 16 {
		t.Errorf("decode %q: got %v", seg, got)
	}
}

func TestVLQDecode_StopsOnInvalidChar(t *testing.T) {
	got := vlqDecode("C*C")
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected decoding to stop at invalid char, got %v", got)
	}
}

func TestVLQEncode_MultipleValues(t *testing.T) {
	seg := vlqEncode(0, 0, 2, 4)
	got := vlqDecode(seg)
	want := []int{0, 0, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
