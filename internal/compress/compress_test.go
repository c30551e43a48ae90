package compress

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	c, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	plaintext := []byte(strings.Repeat("ascii-frame-payload-", 64))
	if !ShouldCompress(plaintext) {
		t.Fatalf("expected payload above threshold to be compressible")
	}
	compressed := c.Compress(plaintext)
	got, err := c.Decompress(compressed, 1<<20)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestRoundTripWithDictionary(t *testing.T) {
	dict := bytes.Repeat([]byte("common-header-bytes-"), 8)
	enc, err := New(dict)
	if err != nil {
		t.Fatalf("New enc: %v", err)
	}
	defer enc.Close()
	dec, err := New(dict)
	if err != nil {
		t.Fatalf("New dec: %v", err)
	}
	defer dec.Close()

	plaintext := append(append([]byte{}, dict...), []byte("frame-specific-tail")...)
	compressed := enc.Compress(plaintext)
	got, err := dec.Decompress(compressed, 1<<20)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip with dictionary mismatch")
	}
}

func TestDecompressRejectsOversizedOutput(t *testing.T) {
	c, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	plaintext := bytes.Repeat([]byte{'a'}, 4096)
	compressed := c.Compress(plaintext)

	if _, err := c.Decompress(compressed, 16); err != ErrOutputTooLarge {
		t.Fatalf("expected ErrOutputTooLarge, got %v", err)
	}
}

func TestShouldCompressThreshold(t *testing.T) {
	if ShouldCompress(make([]byte, Threshold-1)) {
		t.Fatalf("expected payload under threshold to skip compression")
	}
	if !ShouldCompress(make([]byte, Threshold)) {
		t.Fatalf("expected payload at threshold to compress")
	}
}
