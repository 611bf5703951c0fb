package leads

import (
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing a Date value. Values without a zone are UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Draft is a validated submission ready to be stored.
type Draft struct {
	// Fields holds the typed values keyed by attribute display name.
	Fields map[string]any
	// Values holds the canonical text of each value keyed by normalized attribute name.
	Values map[string]string
	// Generation is the catalog generation the draft was validated against.
	Generation uint64
}

// Encode validates a flat key/value submission against cat. Reserved keys are skipped, any other
// key the catalog does not know rejects the whole payload, and every value must parse as its
// attribute's type. Blank optional values are left out.
func Encode(payload map[string]string, cat *Catalog) (Draft, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]string, len(keys))
	for _, k := range keys {
		nk := normalize(k)
		if _, ok := reservedFields[nk]; ok {
			continue
		}
		if !cat.Exists(nk) {
			return Draft{}, newError(CodeRejectedPayload, k, "field %q is not a lead column", k)
		}
		if prev, ok := seen[nk]; ok {
			return Draft{}, newError(CodeRejectedPayload, k, "fields %q and %q name the same column", prev, k)
		}
		seen[nk] = k
	}

	d := Draft{
		Fields:     make(map[string]any, len(seen)),
		Values:     make(map[string]string, len(seen)),
		Generation: cat.Generation(),
	}
	for _, attr := range cat.List() {
		key, ok := seen[attr.Key()]
		raw := payload[key]
		if !ok || strings.TrimSpace(raw) == "" {
			if attr.Required {
				return Draft{}, newError(CodeMissingRequiredField, attr.Name, "%s is required", attr.Name)
			}
			continue
		}

		typed, text, err := parseValue(attr.DataType, raw)
		if err != nil {
			return Draft{}, newError(CodeTypeMismatch, attr.Name, "%s must be a %s: %q", attr.Name, strings.ToLower(string(attr.DataType)), raw)
		}
		d.Fields[attr.Name] = typed
		d.Values[attr.Key()] = text
	}
	return d, nil
}

// Project turns a stored record into the generic view against cat. Values for attributes that
// are no longer in the catalog are dropped. A value that no longer parses as its declared type
// is returned as raw text rather than failing the read.
func Project(rec StoredRecord, cat *Catalog) Record {
	out := Record{
		ID:          rec.ID,
		SubmitterID: rec.SubmitterID,
		CreatedAt:   rec.CreatedAt,
		Status:      rec.Status,
		ApprovedBy:  rec.ApprovedBy,
		ApprovedAt:  rec.ApprovedAt,
		Fields:      make(map[string]any, len(rec.Values)),
	}
	if out.Status == "" {
		out.Status = StatusPending
	}
	for key, text := range rec.Values {
		attr, ok := cat.Lookup(key)
		if !ok {
			continue
		}
		typed, err := decodeValue(attr.DataType, text)
		if err != nil {
			d("project: lead %d column %s holds %q which is not a %s", rec.ID, attr.Name, text, attr.DataType)
			out.Fields[attr.Name] = text
			continue
		}
		out.Fields[attr.Name] = typed
	}
	return out
}

// ProjectAll projects every record against the same catalog snapshot.
func ProjectAll(recs []StoredRecord, cat *Catalog) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, Project(r, cat))
	}
	return out
}

// parseValue checks raw against dt and returns the typed value and its canonical text.
func parseValue(dt DataType, raw string) (any, string, error) {
	switch dt {
	case DataTypeText:
		return raw, raw, nil

	case DataTypeNumber:
		return parseNumber(strings.TrimSpace(raw))

	case DataTypeDate:
		t, err := parseDate(strings.TrimSpace(raw))
		if err != nil {
			return nil, "", err
		}
		return t, t.Format(time.RFC3339Nano), nil

	case DataTypeBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return true, "true", nil
		case "false":
			return false, "false", nil
		}
		return nil, "", strconv.ErrSyntax
	}
	return nil, "", newError(CodeUnsupportedType, string(dt), "data type %q is not supported", dt)
}

// decodeValue reverses the canonical text written by parseValue.
func decodeValue(dt DataType, text string) (any, error) {
	switch dt {
	case DataTypeDate:
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	default:
		v, _, err := parseValue(dt, text)
		return v, err
	}
}

// parseNumber accepts a value only when the shortest float64 text denotes the same number, so
// that what is stored reads back as what was submitted. 9007199254740993 is rejected.
func parseNumber(s string) (any, string, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, "", err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, "", strconv.ErrRange
	}
	text := strconv.FormatFloat(f, 'g', -1, 64)

	given, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, "", strconv.ErrSyntax
	}
	kept, ok := new(big.Rat).SetString(text)
	if !ok || given.Cmp(kept) != 0 {
		return nil, "", strconv.ErrRange
	}
	return f, text, nil
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
