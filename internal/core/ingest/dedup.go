package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the sha-256 hex digest of a chunk's content. Identical
// content always yields the identical checksum, which is what makes resumed
// and repeated ingestions skip the embedding provider.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Deduplicator remembers which checksums already have an embedding within the
// scope of one document. Deduplication is deliberately not shared across
// documents: a cascade delete must never remove a vector another document
// still references.
type Deduplicator struct {
	byChecksum map[string][]float32
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{byChecksum: make(map[string][]float32)}
}

// Seed registers embeddings recovered from already-stored chunks, so a
// resumed ingestion reuses them instead of calling the provider again.
func (d *Deduplicator) Seed(checksum string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	d.byChecksum[checksum] = embedding
}

// Lookup returns the known embedding for a checksum, if any.
func (d *Deduplicator) Lookup(checksum string) ([]float32, bool) {
	vec, ok := d.byChecksum[checksum]
	return vec, ok
}

// Remember stores a freshly computed embedding for later hits.
func (d *Deduplicator) Remember(checksum string, embedding []float32) {
	d.Seed(checksum, embedding)
}
