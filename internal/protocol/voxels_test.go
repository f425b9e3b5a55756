package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_Limit(t *testing.T) {
	enc := EncodeRLE(make([]uint16, CubeLen(1)+1))
	if _, err := DecodeRLE(enc, CubeLen(1)); err == nil {
		t.Fatalf("expected oversized data rejected")
	}
	if _, err := DecodeRLE("!!", 0); err == nil {
		t.Fatalf("expected bad base64 rejected")
	}
}

func rawRLE(pairs ...uint64) string {
	var b []byte
	for _, v := range pairs {
		b = binary.AppendUvarint(b, v)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func TestRLE_HugeRunRejected(t *testing.T) {
	// A run that would wrap the length check must not be expanded.
	enc := rawRLE(1, 1, 1, math.MaxUint64)
	if _, err := DecodeRLE(enc, CubeLen(1)); err == nil {
		t.Fatalf("expected wrapping run rejected")
	}
	if _, err := DecodeRLE(rawRLE(1, 0), CubeLen(1)); err == nil {
		t.Fatalf("expected zero run rejected")
	}
	out, err := DecodeRLE(rawRLE(1, 26, 2, 1), CubeLen(1))
	if err != nil || len(out) != CubeLen(1) || out[26] != 2 {
		t.Fatalf("exact fill = %v, %v", out, err)
	}
}

func TestCubeIndex(t *testing.T) {
	if i, ok := CubeIndex(-1, -1, -1, 1); !ok || i != 0 {
		t.Fatalf("corner index = %d,%v", i, ok)
	}
	if i, ok := CubeIndex(1, 1, 1, 1); !ok || i != CubeLen(1)-1 {
		t.Fatalf("far corner index = %d,%v", i, ok)
	}
	// y is the slowest axis.
	if i, _ := CubeIndex(0, 0, 0, 1); i != 13 {
		t.Fatalf("center index = %d", i)
	}
	if i, _ := CubeIndex(0, -1, 0, 1); i != 4 {
		t.Fatalf("below-center index = %d", i)
	}
	if _, ok := CubeIndex(2, 0, 0, 1); ok {
		t.Fatalf("outside offset accepted")
	}
}
