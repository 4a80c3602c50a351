package listscmd

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"time"
	"unicode/utf8"

	"github.com/rzbill/listdb/internal/lists"
)

// decodedItem returns the item's identity plus one of payload_json,
// payload_text or payload_b64.
func decodedItem(item lists.ListItem) map[string]any {
	out := map[string]any{
		"name":       item.Name,
		"key":        item.Key,
		"etag":       item.Etag.String(),
		"created_at": item.CreatedAt.Format(time.RFC3339Nano),
	}
	payload := item.Data
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

func printItem(w io.Writer, item lists.ListItem) error {
	return json.NewEncoder(w).Encode(decodedItem(item))
}
