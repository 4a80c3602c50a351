package lists

import (
	"encoding/binary"

	"github.com/rzbill/listdb/pkg/etag"
)

// Keyspace layout (byte-wise, lexicographically sortable):
// - lists/e/{etag16}                      primary record
// - lists/n/{nameLen_be4}{name}{etag16}   ByName, empty value
// - lists/k/{nameLen_be4}{name}{key}      ByNameAndKey, value = etag16
//
// The length prefix keeps "ab" from matching a scan of "a".

var (
	primaryPrefix   = []byte("lists/e/")
	byNamePrefix    = []byte("lists/n/")
	byNameKeyPrefix = []byte("lists/k/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendName(dst []byte, name string) []byte {
	dst = appendBE4(dst, uint32(len(name)))
	return append(dst, name...)
}

func keyPrimary(e etag.Etag) []byte {
	k := make([]byte, 0, len(primaryPrefix)+etag.Size)
	k = append(k, primaryPrefix...)
	return append(k, e[:]...)
}

// keyByNameRange returns the prefix shared by every ByName entry of name.
func keyByNameRange(name string) []byte {
	k := make([]byte, 0, len(byNamePrefix)+4+len(name)+etag.Size)
	k = append(k, byNamePrefix...)
	return appendName(k, name)
}

func keyByName(name string, e etag.Etag) []byte {
	return append(keyByNameRange(name), e[:]...)
}

func keyByNameAndKey(name, key string) []byte {
	k := make([]byte, 0, len(byNameKeyPrefix)+4+len(name)+len(key))
	k = append(k, byNameKeyPrefix...)
	k = appendName(k, name)
	return append(k, key...)
}

// etagSuffix parses the trailing etag of a ByName or primary key.
func etagSuffix(k []byte, prefixLen int) (etag.Etag, error) {
	if len(k)-prefixLen != etag.Size {
		return etag.Etag{}, structuralCorruption("lists: index key %x has a %d byte etag", k, len(k)-prefixLen)
	}
	e, _ := etag.FromBytes(k[prefixLen:])
	return e, nil
}

// nameFromByName extracts the list name from any ByName key.
func nameFromByName(k []byte) (string, error) {
	rest := k[len(byNamePrefix):]
	if len(rest) < 4 {
		return "", structuralCorruption("lists: truncated index key %x", k)
	}
	n := int(binary.BigEndian.Uint32(rest))
	if len(rest) != 4+n+etag.Size {
		return "", structuralCorruption("lists: malformed index key %x", k)
	}
	return string(rest[4 : 4+n]), nil
}
