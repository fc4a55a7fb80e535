package proto

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() error {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil)
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return codecErr
}

// Compress zstd-compresses data.
func Compress(data []byte) ([]byte, error) {
	if err := codecs(); err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	if err := codecs(); err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}

// AcceptsZstd reports whether h advertises zstd in Accept-Encoding.
func AcceptsZstd(h http.Header) bool {
	for _, v := range h.Values("Accept-Encoding") {
		for _, tok := range strings.Split(v, ",") {
			if name, _, _ := strings.Cut(strings.TrimSpace(tok), ";"); name == EncodingZstd {
				return true
			}
		}
	}
	return false
}

// IsZstd reports whether h declares a zstd body.
func IsZstd(h http.Header) bool {
	return strings.EqualFold(h.Get("Content-Encoding"), EncodingZstd)
}
