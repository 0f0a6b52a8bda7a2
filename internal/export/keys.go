package export

import "crypto/sha256"

// KeySet records the identity keys already written for one label.
type KeySet interface {
	// Add records key and reports whether it was new.
	Add(key string) (bool, error)
}

// KeySetFactory creates the key set of a label.
type KeySetFactory func(label string) (KeySet, error)

// MemoryKeySets keeps keys in memory as truncated SHA-256 digests,
// so memory per key is fixed regardless of id length.
func MemoryKeySets() KeySetFactory {
	return func(string) (KeySet, error) {
		return memoryKeySet{}, nil
	}
}

// Digest is the fixed-size form a key is stored as.
type Digest [16]byte

// KeyDigest returns the truncated SHA-256 digest of key.
func KeyDigest(key string) Digest {
	sum := sha256.Sum256([]byte(key))
	var d Digest
	copy(d[:], sum[:])
	return d
}

type memoryKeySet map[Digest]struct{}

func (m memoryKeySet) Add(key string) (bool, error) {
	d := KeyDigest(key)
	if _, ok := m[d]; ok {
		return false, nil
	}
	m[d] = struct{}{}
	return true, nil
}
