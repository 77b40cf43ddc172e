package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field names owned by the server.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// timestampLayout renders UTC timestamps with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Item is one record of a list resource, or the body of a singleton.
// Values are limited to string, json.Number, bool, map[string]any and []any.
type Item map[string]any

// ID returns the item id rendered as a string, or "" when absent.
func (it Item) ID() string {
	return idString(it[FieldID])
}

// clone returns a shallow copy of the item.
func (it Item) clone() Item {
	out := make(Item, len(it)+2)
	for k, v := range it {
		out[k] = v
	}
	return out
}

// DecodeObject reads one JSON object and validates its values.
func DecodeObject(r io.Reader) (Item, error) {
	value, err := decodeValue(r)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidBody)
	}
	if errValidate := validateObject("", obj); errValidate != nil {
		return nil, errValidate
	}
	return Item(obj), nil
}

// DecodeBatch reads a bulk payload: an array of objects for list resources,
// a single object for singletons.
func DecodeBatch(r io.Reader, kind Kind) (any, error) {
	value, err := decodeValue(r)
	if err != nil {
		return nil, err
	}
	if kind == KindSingleton {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidBody)
		}
		if errValidate := validateObject("", obj); errValidate != nil {
			return nil, errValidate
		}
		return Item(obj), nil
	}

	arr, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrInvalidBody)
	}
	items := make([]Item, 0, len(arr))
	seen := make(map[string]int, len(arr))
	for i, entry := range arr {
		obj, okObj := entry.(map[string]any)
		if !okObj {
			return nil, fmt.Errorf("%w: [%d] is not an object", ErrInvalidBody, i)
		}
		if errValidate := validateObject(fmt.Sprintf("[%d]", i), obj); errValidate != nil {
			return nil, errValidate
		}
		item := Item(obj)
		if id := item.ID(); id != "" {
			if first, dup := seen[id]; dup {
				return nil, fmt.Errorf("%w: duplicate id %q at [%d] and [%d]", ErrInvalidBody, id, first, i)
			}
			seen[id] = i
		}
		items = append(items, item)
	}
	return items, nil
}

// decodeValue reads exactly one JSON value, keeping numbers as json.Number.
func decodeValue(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", ErrInvalidBody)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON value", ErrInvalidBody)
	}
	return value, nil
}

// validateObject checks every field of obj.
func validateObject(path string, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("%w: empty field name at %s", ErrInvalidBody, displayPath(path))
		}
		if err := validateValue(joinPath(path, k), obj[k]); err != nil {
			return err
		}
	}
	return nil
}

// validateValue enforces the closed set of permitted value types.
func validateValue(path string, v any) error {
	switch val := v.(type) {
	case string, bool:
		return nil
	case json.Number:
		f, err := val.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidBody, path)
		}
		return nil
	case map[string]any:
		return validateObject(path, val)
	case []any:
		for i, child := range val {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), child); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: %s is null", ErrInvalidBody, path)
	default:
		return fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidBody, path, v)
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func displayPath(path string) string {
	if path == "" {
		return "top level"
	}
	return path
}

// idString renders an id value the way ids are compared: as plain strings.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return numberString(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case bool:
		return strconv.FormatBool(id)
	default:
		return ""
	}
}

// numberString renders n in its shortest decimal form so that 1.0 and 1e2
// compare equal to "1" and "100". Plain integer literals are returned as
// written to keep ids beyond float64 precision exact.
func numberString(n json.Number) string {
	raw := n.String()
	if !strings.ContainsAny(raw, ".eE") {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.Abs(f) >= 1e21 {
		return raw
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// leadingInt parses the leading integer of s, ignoring trailing garbage.
// Values without a leading integer count as zero. There is no upper bound
// on the number of digits.
func leadingInt(s string) *big.Int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n := new(big.Int)
	if end == digitsStart {
		return n
	}
	if _, ok := n.SetString(s[:end], 10); !ok {
		return new(big.Int)
	}
	return n
}

// nextID returns max(numeric ids)+1 as a string; "1" for an empty collection.
func nextID(items []Item) string {
	maxID := new(big.Int)
	for _, item := range items {
		if n := leadingInt(item.ID()); n.Cmp(maxID) > 0 {
			maxID = n
		}
	}
	return maxID.Add(maxID, big.NewInt(1)).String()
}

// formatTimestamp renders t in UTC with millisecond precision.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// encode marshals v without HTML escaping so stored text stays readable.
func encode(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
