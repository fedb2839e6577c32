// Package hashing computes stable content hashes.
//
// Values are first rendered in a canonical JSON form (sorted keys, no
// whitespace, ASCII-only strings, shortest round-trip floats) and then
// digested with SHA-256. The canonical form is stable across processes,
// platforms and map iteration order, which makes the resulting hashes
// suitable as data fingerprints and trace identifiers.
//
// # Usage
//
//	h, err := hashing.Hash(map[string]any{"features": features})
//	if err != nil {
//	    var serr *hashing.SerializationError
//	    if errors.As(err, &serr) {
//	        // value contains NaN, a cycle or an unsupported type
//	    }
//	}
package hashing
