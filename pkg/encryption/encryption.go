// Copyright (c) 2025 A Bit of Help, Inc.

// Package encryption seals finished containers with a Tink AEAD keyset.
//
// A sealed container is the 4-byte magic "CMPS" followed by the Tink
// ciphertext of the plain container. The container format version is bound
// as associated data, so a sealed container cannot be replayed under a
// different format.
package encryption

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/abitofhelp/compresso/pkg/dataprocessor"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
	"go.uber.org/zap"
)

var (
	sealedMagic    = []byte("CMPS")
	associatedData = []byte("compresso container v1")
)

// NewKeysetHandle creates a fresh AES-256-GCM keyset
func NewKeysetHandle() (*keyset.Handle, error) {
	kh, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to create keyset handle: %w", err)
	}
	return kh, nil
}

// WriteKeyset serializes kh as cleartext JSON to w
func WriteKeyset(kh *keyset.Handle, w io.Writer) error {
	if err := insecurecleartextkeyset.Write(kh, keyset.NewJSONWriter(w)); err != nil {
		return fmt.Errorf("failed to write keyset: %w", err)
	}
	return nil
}

// writeKeysetBytes writes a serialized keyset to a freshly created file
var writeKeysetBytes = func(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// GenerateKeysetFile writes a new keyset to path. An existing file is never overwritten.
func GenerateKeysetFile(logger *zap.Logger, path string) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	kh, err := NewKeysetHandle()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteKeyset(kh, &buf); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: failed to create keyset file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	if err := writeKeysetBytes(f, buf.Bytes()); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%w: failed to write keyset file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: failed to close keyset file %s: %w", customErrors.ErrIOFailure, path, err)
	}

	logger.Info("Keyset generated", zap.String("path", path))
	return nil
}

// NewAEAD returns the AEAD primitive for kh
func NewAEAD(kh *keyset.Handle) (tink.AEAD, error) {
	a, err := aead.New(kh)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD primitive: %w", err)
	}
	return a, nil
}

// LoadAEAD reads a cleartext JSON keyset from path and returns its AEAD primitive
func LoadAEAD(logger *zap.Logger, path string) (tink.AEAD, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open keyset file %s: %w", customErrors.ErrIOFailure, path, err)
	}
	defer f.Close()

	kh, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read keyset %s: %w", path, err)
	}

	a, err := NewAEAD(kh)
	if err != nil {
		return nil, err
	}

	logger.Debug("Encryption initialized successfully", zap.String("keyset", path))
	return a, nil
}

// IsSealed reports whether data starts with the sealed container magic
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealedMagic)
}

// SealWithContext encrypts a finished container with context awareness
func SealWithContext(ctx context.Context, a tink.AEAD, container []byte) ([]byte, error) {
	sealFunc := func(data []byte) ([]byte, error) {
		ciphertext, err := a.Encrypt(data, associatedData)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(sealedMagic)+len(ciphertext))
		out = append(out, sealedMagic...)
		return append(out, ciphertext...), nil
	}

	return dataprocessor.ProcessWithContext(ctx, sealFunc, container)
}

// OpenWithContext authenticates and decrypts a sealed container with context awareness
func OpenWithContext(ctx context.Context, a tink.AEAD, sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, customErrors.ErrNotSealed
	}

	openFunc := func(data []byte) ([]byte, error) {
		return a.Decrypt(data[len(sealedMagic):], associatedData)
	}

	out, err := dataprocessor.ProcessWithContext(ctx, openFunc, sealed)
	if err != nil {
		if customErrors.IsCancellationError(err) || customErrors.IsTimeoutError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", customErrors.ErrOpenFailed, err)
	}
	return out, nil
}
