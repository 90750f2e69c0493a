// Package dbmap provides the table-driven row mapping helpers used by every
// persisted entity. Entities declare explicit ToMap/FromMap pairs; compound
// fields are serialized as JSON columns via these quick-helpers.
package dbmap

import (
	"github.com/goccy/go-json"
)

// QuickJson marshals v for storage in a JSON column. A nil/empty value is
// stored as "{}" so that json_set() works on the column later.
func QuickJson(v interface{}) string {
	if v == nil {
		return "{}"
	}
	barr, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(barr)
}

// QuickNullableJson is like QuickJson but stores "null" for nil values.
func QuickNullableJson(v interface{}) string {
	if v == nil {
		return "null"
	}
	barr, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(barr)
}

// QuickJsonArr marshals a slice for storage in a JSON column ("[]" when empty).
func QuickJsonArr(v interface{}) string {
	if v == nil {
		return "[]"
	}
	barr, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(barr)
}

func getStringVal(m map[string]interface{}, name string) (string, bool) {
	v, ok := m[name]
	if !ok || v == nil {
		return "", false
	}
	switch tv := v.(type) {
	case string:
		return tv, true
	case []byte:
		return string(tv), true
	}
	return "", false
}

// QuickSetStr sets *strVal from m[name] (TEXT or BLOB column).
func QuickSetStr(strVal *string, m map[string]interface{}, name string) {
	if v, ok := getStringVal(m, name); ok {
		*strVal = v
	}
}

// QuickSetInt64 sets *ival from m[name] (INTEGER column).
func QuickSetInt64(ival *int64, m map[string]interface{}, name string) {
	v, ok := m[name]
	if !ok || v == nil {
		return
	}
	switch tv := v.(type) {
	case int64:
		*ival = tv
	case int:
		*ival = int64(tv)
	case float64:
		*ival = int64(tv)
	}
}

// QuickSetInt sets *ival from m[name] (INTEGER column).
func QuickSetInt(ival *int, m map[string]interface{}, name string) {
	var v64 int64
	QuickSetInt64(&v64, m, name)
	*ival = int(v64)
}

// QuickSetBool sets *bval from m[name]. SQLite stores booleans as 0/1.
func QuickSetBool(bval *bool, m map[string]interface{}, name string) {
	v, ok := m[name]
	if !ok || v == nil {
		return
	}
	switch tv := v.(type) {
	case bool:
		*bval = tv
	case int64:
		*bval = tv != 0
	case int:
		*bval = tv != 0
	}
}

// QuickSetBytes sets *bytesVal from m[name] (BLOB column).
func QuickSetBytes(bytesVal *[]byte, m map[string]interface{}, name string) {
	v, ok := m[name]
	if !ok || v == nil {
		return
	}
	switch tv := v.(type) {
	case []byte:
		*bytesVal = tv
	case string:
		*bytesVal = []byte(tv)
	}
}

// QuickSetJson unmarshals a JSON column into ptr (a pointer to the target).
func QuickSetJson(ptr interface{}, m map[string]interface{}, name string) {
	jsonStr, ok := getStringVal(m, name)
	if !ok || jsonStr == "" || jsonStr == "null" {
		return
	}
	_ = json.Unmarshal([]byte(jsonStr), ptr)
}

// QuickSetNullableJson unmarshals a JSON column, leaving ptr untouched for
// "null" so nil-valued pointers round-trip.
func QuickSetNullableJson(ptr interface{}, m map[string]interface{}, name string) {
	QuickSetJson(ptr, m, name)
}

// QuickSetJsonArr unmarshals a JSON array column into a string slice.
func QuickSetJsonArr(arr *[]string, m map[string]interface{}, name string) {
	jsonStr, ok := getStringVal(m, name)
	if !ok || jsonStr == "" || jsonStr == "null" {
		return
	}
	var rtn []string
	if err := json.Unmarshal([]byte(jsonStr), &rtn); err != nil {
		return
	}
	*arr = rtn
}
