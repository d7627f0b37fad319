package documentdb

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// decodeJSON keeps numbers as json.Number so int64 values above 2^53
// survive a decode and re-encode unchanged.
func decodeJSON(data []byte, into any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(into); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func decodeObject(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := decodeJSON(data, &fields); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "document is not a JSON object: %v", err)
	}
	if fields == nil {
		return nil, status.Error(codes.InvalidArgument, "document is not a JSON object")
	}
	return fields, nil
}

// normalizeValue converts a filter value to the representation documents
// decode into: json.Number, string, bool, nil, maps and slices. Metadata time
// fields keep time.Time.
func normalizeValue(field string, v any) (any, error) {
	switch field {
	case FieldCreateTime, FieldUpdateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "field %s requires a time value", field)
		}
		return t, nil
	case FieldID:
		s, ok := v.(string)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "field %s requires a string value", field)
		}
		return s, nil
	}

	raw, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := decodeJSON(raw, &out); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "filter value for %s: %v", field, err)
	}
	return out, nil
}

func encodeValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode filter value: %v", err)
	}
	return raw, nil
}

// Type ranks used when values of different types are ordered.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTime
	rankString
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case json.Number, float64:
		return rankNumber
	case time.Time:
		return rankTime
	case string:
		return rankString
	default:
		return rankOther
	}
}

// compareValues compares two values of the same type. ok is false
// when the types differ or the type has no ordering.
func compareValues(a, b any) (cmp int, ok bool) {
	if rank(a) != rank(b) {
		return 0, false
	}

	switch av := a.(type) {
	case nil:
		return 0, true
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case json.Number, float64:
		return compareNumbers(a, b)
	case time.Time:
		return av.Compare(b.(time.Time)), true
	case string:
		return strings.Compare(av, b.(string)), true
	default:
		ra, errA := json.Marshal(a)
		rb, errB := json.Marshal(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		return bytes.Compare(ra, rb), true
	}
}

// orderValues gives a total order across types for sorting.
func orderValues(a, b any) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	c, _ := compareValues(a, b)
	return c
}

// compareNumbers compares exactly when both sides are integers and falls
// back to float64 otherwise.
func compareNumbers(a, b any) (int, bool) {
	ai, aInt := numberAsInt(a)
	bi, bInt := numberAsInt(b)
	if aInt && bInt {
		return cmp.Compare(ai, bi), true
	}

	af, aOK := numberAsFloat(a)
	bf, bOK := numberAsFloat(b)
	if !aOK || !bOK {
		return 0, false
	}
	return cmp.Compare(af, bf), true
}

func numberAsInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(n.String(), 10, 64)
	return i, err == nil
}

func numberAsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
