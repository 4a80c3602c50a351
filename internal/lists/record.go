package lists

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"github.com/buger/jsonparser"
	"github.com/rzbill/listdb/pkg/etag"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)
//
// The header is a small JSON object; the payload is the item data, possibly
// compressed per header.codec.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordHeader struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	Etag      string `json:"etag"`
	CreatedAt int64  `json:"createdAt"` // unix nanoseconds
	Codec     Codec  `json:"codec"`
}

func encodeFrame(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

// decodeFrame returns views into b; callers copy what they keep.
func decodeFrame(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || hlen > uint64(len(b)) {
		return nil, nil, false
	}
	if n+int(hlen)+4 > len(b) {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return header, payload, true
}

func encodeRecord(h recordHeader, payload []byte) ([]byte, error) {
	hb, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return encodeFrame(hb, payload), nil
}

var headerPaths = [][]string{{"name"}, {"key"}, {"etag"}, {"createdAt"}, {"codec"}}

// decodeRecord validates framing and parses the header. The returned payload
// aliases b.
func decodeRecord(b []byte) (recordHeader, etag.Etag, []byte, error) {
	var h recordHeader
	hb, payload, ok := decodeFrame(b)
	if !ok {
		return h, etag.Etag{}, nil, dataCorruption("lists: record framing or checksum mismatch (%d bytes)", len(b))
	}

	var seen int
	var perr error
	jsonparser.EachKey(hb, func(idx int, value []byte, _ jsonparser.ValueType, err error) {
		if err != nil {
			perr = err
			return
		}
		seen |= 1 << idx
		switch idx {
		case 0:
			h.Name, err = jsonparser.ParseString(value)
		case 1:
			h.Key, err = jsonparser.ParseString(value)
		case 2:
			h.Etag, err = jsonparser.ParseString(value)
		case 3:
			h.CreatedAt, err = jsonparser.ParseInt(value)
		case 4:
			var s string
			s, err = jsonparser.ParseString(value)
			h.Codec = Codec(s)
		}
		if err != nil && perr == nil {
			perr = err
		}
	}, headerPaths...)
	if perr != nil {
		return h, etag.Etag{}, nil, dataCorruption("lists: record header: %v", perr)
	}
	if seen != 1<<len(headerPaths)-1 {
		return h, etag.Etag{}, nil, dataCorruption("lists: record header %q is missing fields", hb)
	}
	e, err := etag.Parse(h.Etag)
	if err != nil {
		return h, etag.Etag{}, nil, structuralCorruption("lists: record header etag: %v", err)
	}
	return h, e, payload, nil
}
