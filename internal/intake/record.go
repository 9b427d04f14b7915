package intake

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Record is one ledger entry: a file content that has completed intake.
type Record struct {
	ContentDigest string    `json:"content_digest"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	ProcessedAt   time.Time `json:"processed_at"`

	// extra keeps fields written by other tools so a rewrite does not drop them.
	extra map[string]json.RawMessage
	// rawProcessedAt holds a timestamp that could not be parsed.
	rawProcessedAt string
	// opaque holds an entry value that is not a JSON object at all.
	opaque json.RawMessage
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ledgerEntry is the persisted value shape. The digest is the map key.
func (r Record) marshalEntry() (json.RawMessage, error) {
	if len(r.opaque) > 0 {
		return r.opaque, nil
	}
	out := make(map[string]any, len(r.extra)+3)
	for key, value := range r.extra {
		out[key] = value
	}
	out["file_name"] = r.FileName
	out["file_path"] = r.FilePath
	switch {
	case !r.ProcessedAt.IsZero():
		out["processed_at"] = r.ProcessedAt.Format(time.RFC3339Nano)
	case r.rawProcessedAt != "":
		out["processed_at"] = r.rawProcessedAt
	}
	return json.Marshal(out)
}

func unmarshalEntry(digest string, data json.RawMessage) Record {
	rec := Record{ContentDigest: digest}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		rec.opaque = append(json.RawMessage(nil), data...)
		return rec
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		rec.opaque = append(json.RawMessage(nil), data...)
		return rec
	}
	for key, value := range fields {
		switch key {
		case "file_name":
			_ = json.Unmarshal(value, &rec.FileName)
		case "file_path":
			_ = json.Unmarshal(value, &rec.FilePath)
		case "processed_at":
			var raw string
			if err := json.Unmarshal(value, &raw); err == nil {
				if ts, ok := parseTimestamp(raw); ok {
					rec.ProcessedAt = ts
				} else {
					rec.rawProcessedAt = raw
				}
				continue
			}
			fallthrough
		default:
			if rec.extra == nil {
				rec.extra = make(map[string]json.RawMessage)
			}
			rec.extra[key] = value
		}
	}
	return rec
}
