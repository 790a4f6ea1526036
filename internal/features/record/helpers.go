package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ParseInt64 parses a string or number into an int64
func ParseInt64(val interface{}, defaultVal int64) int64 {
	if val == nil {
		return defaultVal
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
	}
	return defaultVal
}

// NormalizeID renders a loosely typed target id as its canonical string form.
// Numbers use plain decimal notation and ObjectIDs their hex form.
func NormalizeID(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("empty id")
		}
		return v, nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("invalid numeric id %v", v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported id type %T", val)
}
