package storage

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// codec transforms the encoded state on its way to and from disk.
type codec interface {
	Encode(raw []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

type plainCodec struct{}

func (plainCodec) Encode(raw []byte) ([]byte, error)  { return raw, nil }
func (plainCodec) Decode(data []byte) ([]byte, error) { return data, nil }

type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdCodec{encoder: enc, decoder: dec}, nil
}

func (z *zstdCodec) Encode(raw []byte) ([]byte, error) {
	return z.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func (z *zstdCodec) Decode(data []byte) ([]byte, error) {
	return z.decoder.DecodeAll(data, nil)
}

// codecFor picks zstd for ".zst" paths and plain JSON otherwise.
func codecFor(path string) (codec, error) {
	if strings.HasSuffix(strings.ToLower(path), ".zst") {
		return newZstdCodec()
	}
	return plainCodec{}, nil
}
