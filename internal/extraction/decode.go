package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"medthread/internal/models"
)

// FieldIssue records a field that was dropped to null/empty instead of failing
// the whole record.
type FieldIssue struct {
	Field  string
	Reason string
}

func (f FieldIssue) String() string {
	return f.Field + ": " + f.Reason
}

var featureFields = indexFeatureFields()

func indexFeatureFields() map[string]int {
	t := reflect.TypeOf(models.Features{})
	out := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name != "" && name != "-" {
			out[name] = i
		}
	}
	return out
}

// DecodeFeatures decodes obj field by field. The top-level value must be a JSON
// object; any individual field that cannot be coerced is left null/empty and
// reported as an issue.
func DecodeFeatures(obj string) (*models.Features, []FieldIssue, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return nil, nil, fmt.Errorf("top-level value is not an object: %w", err)
	}
	if fields == nil {
		return nil, nil, fmt.Errorf("top-level value is null")
	}

	f := &models.Features{}
	rv := reflect.ValueOf(f).Elem()
	var issues []FieldIssue
	for name, raw := range fields {
		idx, ok := featureFields[name]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		field := rv.Field(idx)
		if err := decodeField(field, raw); err != nil {
			issues = append(issues, FieldIssue{Field: name, Reason: err.Error()})
			field.Set(reflect.Zero(field.Type()))
		}
	}
	f.EnsureLists()
	sortIssues(issues)
	return f, issues, nil
}

func decodeField(field reflect.Value, raw json.RawMessage) error {
	ptr := reflect.New(field.Type())
	if err := json.Unmarshal(raw, ptr.Interface()); err == nil {
		field.Set(ptr.Elem())
		return nil
	}
	coerced, err := coerce(field.Type(), raw)
	if err != nil {
		return err
	}
	field.Set(coerced)
	return nil
}

// coerce handles the shapes models commonly emit instead of the schema type:
// numbers and booleans as strings, a single string where a list is expected.
func coerce(t reflect.Type, raw json.RawMessage) (reflect.Value, error) {
	var s string
	isString := json.Unmarshal(raw, &s) == nil
	s = strings.TrimSpace(s)

	elem := t
	if t.Kind() == reflect.Pointer {
		elem = t.Elem()
	}
	switch {
	case isString && s == "":
		return reflect.Zero(t), nil
	case isString && (elem.Kind() == reflect.Int || elem.Kind() == reflect.Float64):
		n, err := parseLooseNumber(s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("expected number, got %q", s)
		}
		v := reflect.New(elem)
		if elem.Kind() == reflect.Int {
			v.Elem().SetInt(int64(n))
		} else {
			v.Elem().SetFloat(n)
		}
		return pointerOrValue(t, v), nil
	case isString && elem.Kind() == reflect.Bool:
		b, ok := parseLooseBool(s)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected boolean, got %q", s)
		}
		v := reflect.New(elem)
		v.Elem().SetBool(b)
		return pointerOrValue(t, v), nil
	case !isString && elem.Kind() == reflect.Int:
		var fl float64
		if json.Unmarshal(raw, &fl) == nil {
			v := reflect.New(elem)
			v.Elem().SetInt(int64(math.Round(fl)))
			return pointerOrValue(t, v), nil
		}
	case isString && t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		return reflect.ValueOf([]string{s}), nil
	case elem.Kind() == reflect.String:
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			v := reflect.New(elem)
			v.Elem().SetString(n.String())
			return pointerOrValue(t, v), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot coerce %s into %s", abbreviate(raw), t)
}

func pointerOrValue(t reflect.Type, v reflect.Value) reflect.Value {
	if t.Kind() == reflect.Pointer {
		return v
	}
	return v.Elem()
}

func parseLooseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimLeft(s, "$£€~≈"))
	s = strings.ReplaceAll(s, ",", "")
	fields := strings.Fields(s)
	if len(fields) > 0 {
		s = fields[0]
	}
	return strconv.ParseFloat(s, 64)
}

func parseLooseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "y":
		return true, true
	case "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func abbreviate(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

func sortIssues(issues []FieldIssue) {
	sort.Slice(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
}
