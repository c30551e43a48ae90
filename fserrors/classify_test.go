package fserrors

import (
	"context"
	"errors"
	"testing"

	"github.com/asciichat/asciichat-go/internal/aead"
	"github.com/asciichat/asciichat-go/internal/wire"
)

func TestClassifyWireCode(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{wire.ErrBadMagic, CodeProtocolBadMagic},
		{wire.ErrUnsupportedVersion, CodeProtocolBadVersion},
		{wire.ErrOversizedPayload, CodeProtocolOversized},
		{wire.ErrTruncated, CodeProtocolTruncated},
		{wire.ErrCrcMismatch, CodeProtocolCRCMismatch},
		{errors.New("other"), CodeProtocolViolation},
	}
	for _, tc := range cases {
		if got := ClassifyWireCode(tc.err); got != tc.want {
			t.Fatalf("ClassifyWireCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestClassifyRecordCode(t *testing.T) {
	if got := ClassifyRecordCode(aead.ErrReplay); got != CodeCryptoReplay {
		t.Fatalf("expected %q, got %q", CodeCryptoReplay, got)
	}
	if got := ClassifyRecordCode(aead.ErrOpenFailed); got != CodeCryptoOpenFailed {
		t.Fatalf("expected %q, got %q", CodeCryptoOpenFailed, got)
	}
}

func TestClassifyHandshakeCode(t *testing.T) {
	if got := ClassifyHandshakeCode(context.DeadlineExceeded); got != CodeCryptoHandshakeTimeout {
		t.Fatalf("expected %q, got %q", CodeCryptoHandshakeTimeout, got)
	}
	if got := ClassifyHandshakeCode(aead.ErrSignatureInvalid); got != CodeCryptoBadSignature {
		t.Fatalf("expected %q, got %q", CodeCryptoBadSignature, got)
	}
}

func TestWrapAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(PathWire, StageDecode, CodeProtocolTruncated, base)
	if !errors.Is(err, base) {
		t.Fatalf("expected Wrap to preserve Unwrap chain")
	}
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected errors.As to find *Error")
	}
	if fe.Code != CodeProtocolTruncated {
		t.Fatalf("expected code %q, got %q", CodeProtocolTruncated, fe.Code)
	}
}
