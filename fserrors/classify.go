package fserrors

import (
	"context"
	"errors"

	"github.com/asciichat/asciichat-go/internal/aead"
	"github.com/asciichat/asciichat-go/internal/wire"
)

// ClassifyWireCode maps a packet codec error to a stable Code.
func ClassifyWireCode(err error) Code {
	switch {
	case errors.Is(err, wire.ErrBadMagic):
		return CodeProtocolBadMagic
	case errors.Is(err, wire.ErrUnsupportedVersion):
		return CodeProtocolBadVersion
	case errors.Is(err, wire.ErrOversizedPayload):
		return CodeProtocolOversized
	case errors.Is(err, wire.ErrTruncated):
		return CodeProtocolTruncated
	case errors.Is(err, wire.ErrCrcMismatch):
		return CodeProtocolCRCMismatch
	case errors.Is(err, wire.ErrUnknownFatalType):
		return CodeProtocolUnknownType
	default:
		return CodeProtocolViolation
	}
}

// ClassifyRecordCode maps a record-layer decrypt error to a stable Code.
func ClassifyRecordCode(err error) Code {
	switch {
	case errors.Is(err, aead.ErrReplay):
		return CodeCryptoReplay
	case errors.Is(err, aead.ErrOpenFailed):
		return CodeCryptoOpenFailed
	default:
		return CodeCryptoOpenFailed
	}
}

// ClassifyHandshakeCode maps a handshake-layer error to a stable Code.
func ClassifyHandshakeCode(err error) Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeCryptoHandshakeTimeout
	case errors.Is(err, aead.ErrSignatureInvalid):
		return CodeCryptoBadSignature
	case errors.Is(err, aead.ErrInvalidPublicKey):
		return CodeCryptoAuthFailed
	default:
		return CodeCryptoAuthFailed
	}
}
