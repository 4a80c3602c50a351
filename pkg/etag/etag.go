package etag

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Size is the length of the binary encoding.
const Size = 16

// maxSequence is the largest sequence that fits in the 7 sequence bytes.
const maxSequence = 1<<56 - 1

// Kind tags the category of write that produced an etag.
type Kind byte

const (
	KindUnknown Kind = iota
	KindDocuments
	KindAttachments
	KindTasks
	KindIndexing
	KindLists
	KindSubscriptions
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDocuments:
		return "documents"
	case KindAttachments:
		return "attachments"
	case KindTasks:
		return "tasks"
	case KindIndexing:
		return "indexing"
	case KindLists:
		return "lists"
	case KindSubscriptions:
		return "subscriptions"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to its value.
func ParseKind(s string) (Kind, error) {
	for k := KindUnknown; k <= KindSubscriptions; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("etag: unknown kind %q", s)
}

// Etag is a 128-bit, lexicographically sortable identifier encoded as 16 bytes
// big-endian: [8 bytes ms_timestamp][7 bytes sequence][1 byte kind].
type Etag [Size]byte

// Zero sorts before every generated etag.
var Zero Etag

// Max sorts after every generated etag.
var Max = Etag{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Bytes returns the raw 16-byte representation.
func (e Etag) Bytes() []byte { b := make([]byte, Size); copy(b, e[:]); return b }

// String returns the canonical fixed-width hex form.
func (e Etag) String() string { return hex.EncodeToString(e[:]) }

// Millis returns the embedded millisecond timestamp.
func (e Etag) Millis() int64 { return int64(binary.BigEndian.Uint64(e[0:8])) }

// Sequence returns the embedded per-millisecond sequence.
func (e Etag) Sequence() uint64 {
	var b [8]byte
	copy(b[1:], e[8:15])
	return binary.BigEndian.Uint64(b[:])
}

// Kind returns the category tag.
func (e Etag) Kind() Kind { return Kind(e[15]) }

// IsZero reports whether e is the zero etag.
func (e Etag) IsZero() bool { return e == Zero }

// Compare returns -1, 0, 1 based on lexical comparison.
func (e Etag) Compare(other Etag) int {
	for idx := 0; idx < Size; idx++ {
		if e[idx] < other[idx] {
			return -1
		}
		if e[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler using the canonical form.
func (e Etag) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Etag) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*e = p
	return nil
}

// Parse decodes the canonical hex form.
func Parse(s string) (Etag, error) {
	var e Etag
	if len(s) != Size*2 {
		return e, fmt.Errorf("etag: invalid length %d in %q", len(s), s)
	}
	if _, err := hex.Decode(e[:], []byte(s)); err != nil {
		return e, fmt.Errorf("etag: invalid hex %q: %w", s, err)
	}
	return e, nil
}

// FromBytes decodes the 16-byte binary form.
func FromBytes(b []byte) (Etag, error) {
	var e Etag
	if len(b) != Size {
		return e, fmt.Errorf("etag: invalid length %d", len(b))
	}
	copy(e[:], b)
	return e, nil
}

// Generator produces monotonically increasing etags per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new etag tagged with kind. If clock goes backwards, it uses lastMs and increments sequence.
// If sequence overflows within the same millisecond, it busy-waits for next ms.
func (g *Generator) Next(kind Kind) Etag {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence >= maxSequence {
			// wait until next ms to avoid overflow
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return makeEtag(ms, g.sequence, kind)
}

// Observe raises the generator state so that every later Next is strictly
// greater than e. Observing an etag at or below the current state is a no-op.
func (g *Generator) Observe(e Etag) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms, seq := e.Millis(), e.Sequence()
	if ms > g.lastMs || (ms == g.lastMs && seq > g.sequence) {
		g.lastMs = ms
		g.sequence = seq
	}
}

func makeEtag(ms int64, seq uint64, kind Kind) Etag {
	var e Etag
	if ms < 0 {
		ms = 0
	}
	binary.BigEndian.PutUint64(e[0:8], uint64(ms))
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	copy(e[8:15], s[1:])
	e[15] = byte(kind)
	return e
}
