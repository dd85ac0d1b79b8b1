package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// ReceiptCOSE is a raw COSE_Sign1 receipt over one journal event.
type ReceiptCOSE []byte

// ReceiptBase64 is a receipt in standard base64, as carried in JSON bodies.
type ReceiptBase64 string

// ReceiptURLBase64 is a receipt in unpadded URL-safe base64.
type ReceiptURLBase64 string

// ReceiptGzip is a gzip-compressed receipt in unpadded URL-safe base64,
// suitable for query strings and notification payloads.
type ReceiptGzip string

// EncodeBase64 encodes the receipt for JSON transport.
func (r ReceiptCOSE) EncodeBase64() ReceiptBase64 {
	return ReceiptBase64(base64.StdEncoding.EncodeToString(r))
}

// EncodeURLSafe encodes the receipt without padding for use in URLs.
func (r ReceiptCOSE) EncodeURLSafe() ReceiptURLBase64 {
	return ReceiptURLBase64(base64.RawURLEncoding.EncodeToString(r))
}

// CompressGzip compresses the receipt and encodes it URL-safe.
// Output is deterministic for a given input.
func (r ReceiptCOSE) CompressGzip() (ReceiptGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(r); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return ReceiptGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (s ReceiptBase64) String() string { return string(s) }

// Decode returns the raw receipt bytes.
func (s ReceiptBase64) Decode() (ReceiptCOSE, error) {
	raw, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

// CompressGzip re-encodes a base64 receipt in compressed form.
func (s ReceiptBase64) CompressGzip() (ReceiptGzip, error) {
	raw, err := s.Decode()
	if err != nil {
		return "", err
	}
	return raw.CompressGzip()
}

func (s ReceiptURLBase64) String() string { return string(s) }

// Decode accepts both padded and unpadded input.
func (s ReceiptURLBase64) Decode() (ReceiptCOSE, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(s), "="))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return ReceiptCOSE(raw), nil
}

func (s ReceiptGzip) String() string { return string(s) }

// Decompress returns the raw receipt bytes.
func (s ReceiptGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(s))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip: %w", err)
	}
	return ReceiptCOSE(raw), nil
}
