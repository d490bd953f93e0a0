// Package seal persists the file index as an integrity-protected blob.
//
// Layout: version (1 byte) | CBOR array of byte strings | HMAC-SHA256 tag (32 bytes)
//
// The tag detects corruption and casual tampering of the cache file. The key
// lives next to the binary or in configuration, so it is not a security
// boundary against a local attacker.
package seal

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// TagSize is the length of the trailing HMAC-SHA256 tag.
	TagSize = sha256.Size

	// FormatVersion prefixes every payload. Bumping it invalidates all caches.
	FormatVersion byte = 0x01

	// DefaultSecret is used when no cache key is configured. It is published
	// here on purpose and only guards against accidental corruption.
	DefaultSecret = "piceval-file-index-not-a-secret"

	keyDomain = "piceval.seal.index.v1"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	// Paths are raw bytes on most filesystems and need not be valid UTF-8.
	encOptions.String = cbor.StringToByteString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("seal: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// An index can hold far more entries than the library default allows.
		MaxArrayElements:   2147483647,
		ByteStringToString: cbor.ByteStringToStringAllowed,
	}.DecMode()
	if err != nil {
		panic("seal: CBOR decoder initialization failed: " + err.Error())
	}
}

// DeriveKey turns a configured secret into a fixed-size MAC key. An empty
// secret selects DefaultSecret.
func DeriveKey(secret string) []byte {
	if secret == "" {
		secret = DefaultSecret
	}
	h := sha256.New()
	h.Write([]byte(keyDomain))
	h.Write([]byte{0})
	h.Write([]byte(secret))
	return h.Sum(nil)
}

// Seal encodes paths and appends the authentication tag.
func Seal(paths []string, key []byte) ([]byte, error) {
	body, err := encMode.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(1 + len(body) + TagSize)
	buf.WriteByte(FormatVersion)
	buf.Write(body)
	buf.Write(tag(buf.Bytes(), key))
	return buf.Bytes(), nil
}

// Open verifies blob and decodes its payload. It reports false for a tag
// mismatch, a truncated blob, an unknown format version, or a payload that
// is not a flat array of strings. It never panics on hostile input.
func Open(blob []byte, key []byte) ([]string, bool) {
	if !Verify(blob, key) {
		return nil, false
	}

	payload := blob[:len(blob)-TagSize]
	if payload[0] != FormatVersion {
		return nil, false
	}

	var paths []string
	if err := decMode.Unmarshal(payload[1:], &paths); err != nil {
		return nil, false
	}
	return paths, true
}

// Verify reports whether blob carries a valid tag for key.
func Verify(blob []byte, key []byte) bool {
	if len(blob) < TagSize+1 {
		return false
	}
	payload := blob[:len(blob)-TagSize]
	return hmac.Equal(blob[len(blob)-TagSize:], tag(payload, key))
}

// Fingerprint returns the blob's tag in prefixed checksum form, e.g.
// "hmac-sha256:9f86d0...". Blobs too short to carry a tag yield "".
func Fingerprint(blob []byte) string {
	if len(blob) < TagSize {
		return ""
	}
	return "hmac-sha256:" + hex.EncodeToString(blob[len(blob)-TagSize:])
}

func tag(payload, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}
