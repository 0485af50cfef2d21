package contentcache

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
)

// Embedding vectors are too large for table rows, so they live in the cache
// as little-endian float32 frames keyed by their own content hash.

// PutEmbedding serializes a vector into the cache and returns its blob key.
func (c *Cache) PutEmbedding(vector []float32) (string, error) {
	data := encodeEmbedding(vector)
	hash := contenthash.SumBytes(data)
	if err := c.Put(hash, data); err != nil {
		return "", err
	}
	return hash, nil
}

// GetEmbedding loads and decodes the vector stored under hash.
func (c *Cache) GetEmbedding(hash string) ([]float32, error) {
	data, err := c.Get(hash)
	if err != nil {
		return nil, err
	}
	return decodeEmbedding(data)
}

func encodeEmbedding(vector []float32) []byte {
	data := make([]byte, 4+4*len(vector))
	binary.LittleEndian.PutUint32(data, uint32(len(vector)))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(data[4+4*i:], math.Float32bits(v))
	}
	return data
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("content cache: embedding blob truncated (%d bytes)", len(data))
	}
	count := binary.LittleEndian.Uint32(data)
	if uint64(len(data)) != 4+4*uint64(count) {
		return nil, fmt.Errorf("content cache: embedding blob length mismatch (header %d, %d bytes)", count, len(data))
	}
	vector := make([]float32, count)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return vector, nil
}
