// Package ids derives deterministic identifiers for stored chunks and summaries.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// namespace scopes every name-based UUID generated here.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/mentis"))

// ChunkID returns a stable UUID for the chunk at index in collection with the given text.
// Encoding the same text into the same collection always yields the same ids.
func ChunkID(collection string, index int, text string) string {
	return uuid.NewSHA1(namespace, []byte(collection+"\x00"+strconv.Itoa(index)+"\x00"+text)).String()
}

// SummaryID returns a stable UUID for a summary built from the given source chunk ids.
func SummaryID(collection string, sourceChunkIDs []string) string {
	return uuid.NewSHA1(namespace, []byte(collection+"\x00"+strings.Join(sourceChunkIDs, ","))).String()
}

// ContentHash returns the hex SHA-256 of the texts joined by newlines.
func ContentHash(texts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(texts, "\n")))
	return hex.EncodeToString(h[:])
}
