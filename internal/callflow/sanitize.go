package callflow

import (
	"encoding/json"
	"sort"
	"strings"
)

// Sanitization bounds for the per-call payload copy. The original,
// unsanitized payload remains in the raw_events row forever; only this
// per-call copy is shrunk for storage alongside the call.
const (
	maxDepth          = 5
	maxArrayLen       = 10
	maxTranscriptLen  = 500
	maxMetadataKeys   = 20
	metadataSampleLen = 5
)

var binaryPlaceholderKeys = map[string]bool{
	"binary_data": true,
	"audio_data":  true,
	"file_data":   true,
}

const binaryPlaceholder = "[binary data omitted]"
const truncationSuffix = "...[truncated]"

// SanitizePayload produces a size- and depth-bounded copy of raw for
// storage on the call row: depth cap 5, arrays over 10 elements
// truncated with a marker, "*transcript*" string values over 500
// characters truncated with a suffix, binary-ish keys replaced with a
// placeholder, and an oversized "metadata" object replaced with a
// five-key sample plus a total count.
func SanitizePayload(raw json.RawMessage) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	sanitized := sanitizeValue(v, 0)
	return json.Marshal(sanitized)
}

func sanitizeValue(v interface{}, depth int) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return sanitizeObject(t, depth)
	case []interface{}:
		return sanitizeArray(t, depth)
	default:
		return t
	}
}

func sanitizeObject(obj map[string]interface{}, depth int) interface{} {
	if depth >= maxDepth {
		return map[string]interface{}{"_depth_truncated": true}
	}

	out := make(map[string]interface{}, len(obj))
	for key, val := range obj {
		switch {
		case binaryPlaceholderKeys[key]:
			out[key] = binaryPlaceholder
		case key == "metadata":
			out[key] = sanitizeMetadata(val)
		case strings.Contains(strings.ToLower(key), "transcript"):
			out[key] = sanitizeTranscriptValue(val, depth)
		default:
			out[key] = sanitizeValue(val, depth+1)
		}
	}
	return out
}

func sanitizeTranscriptValue(val interface{}, depth int) interface{} {
	s, ok := val.(string)
	if !ok {
		return sanitizeValue(val, depth+1)
	}
	if len(s) <= maxTranscriptLen {
		return s
	}
	return s[:maxTranscriptLen] + truncationSuffix
}

// sanitizeMetadata replaces a metadata object carrying more than
// maxMetadataKeys keys with a summary of a handful of sample keys and
// the total key count, rather than shrinking it key by key.
func sanitizeMetadata(val interface{}) interface{} {
	obj, ok := val.(map[string]interface{})
	if !ok {
		return sanitizeValue(val, maxDepth) // non-object metadata: treat conservatively
	}
	if len(obj) <= maxMetadataKeys {
		return sanitizeValue(obj, 0)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sample := keys
	if len(sample) > metadataSampleLen {
		sample = sample[:metadataSampleLen]
	}
	return map[string]interface{}{
		"_summary":    true,
		"sample_keys": sample,
		"total_keys":  len(obj),
	}
}

func sanitizeArray(arr []interface{}, depth int) interface{} {
	if depth >= maxDepth {
		return map[string]interface{}{"_depth_truncated": true}
	}

	if len(arr) <= maxArrayLen {
		out := make([]interface{}, len(arr))
		for i, el := range arr {
			out[i] = sanitizeValue(el, depth+1)
		}
		return out
	}

	out := make([]interface{}, 0, maxArrayLen+1)
	for i := 0; i < maxArrayLen; i++ {
		out = append(out, sanitizeValue(arr[i], depth+1))
	}
	out = append(out, map[string]interface{}{
		"_truncated":      true,
		"original_length": len(arr),
	})
	return out
}
