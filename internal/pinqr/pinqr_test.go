package pinqr

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func TestGeneratePINRangeAndFormat(t *testing.T) {
	for i := 0; i < 500; i++ {
		pin, err := GeneratePIN()
		if err != nil {
			t.Fatalf("GeneratePIN failed: %v", err)
		}
		if len(pin) != 6 {
			t.Fatalf("pin %q is not 6 characters", pin)
		}
		n, err := strconv.Atoi(pin)
		if err != nil {
			t.Fatalf("pin %q is not numeric: %v", pin, err)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("pin %d outside 100000-999999", n)
		}
	}
}

func TestEncodeProducesPNG(t *testing.T) {
	png, err := Encode("123456")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestEncodeOverCapacityFails(t *testing.T) {
	// QR capacity at correction level H tops out well under 2KB.
	if _, err := Encode(strings.Repeat("x", 4000)); err == nil {
		t.Error("expected an error for an oversized payload")
	}
}
