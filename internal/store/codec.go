package store

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
)

// Tokens are stored as a space-padded joined string (" a b c ") so that
// containment checks can match whole tokens with instr().
func encodeTokens(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return " " + strings.Join(tokens, " ") + " "
}

func decodeTokens(s string) []string {
	return strings.Fields(s)
}

// tokenNeedle returns the padded form used for whole-token matching.
func tokenNeedle(tok string) string {
	return " " + tok + " "
}

// Embeddings are stored as little-endian float32 blobs.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func encodeMedia(items []MediaItem) string {
	if len(items) == 0 {
		return ""
	}
	b, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeMedia(s string) []MediaItem {
	if s == "" {
		return nil
	}
	var items []MediaItem
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}
