package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// The configuration entities keep their open-ended documents as typed JSON
// blobs; these wrappers give them database/sql round-tripping as JSONB.

func jsonValue(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func jsonScan(src, dst interface{}) error {
	if src == nil {
		return nil
	}
	switch s := src.(type) {
	case []byte:
		return json.Unmarshal(s, dst)
	case string:
		return json.Unmarshal([]byte(s), dst)
	default:
		return fmt.Errorf("cannot scan %T into JSON value", src)
	}
}

// JSONMap is an opaque JSON object
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return jsonValue(JSONMap{})
	}
	return jsonValue(m)
}

func (m *JSONMap) Scan(src interface{}) error { return jsonScan(src, m) }

// StringList is a JSON array of strings
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return jsonValue(StringList{})
	}
	return jsonValue(l)
}

func (l *StringList) Scan(src interface{}) error { return jsonScan(src, l) }

// Contains reports whether the list holds s.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// StringMap is a JSON object of string values (webhook headers)
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return jsonValue(StringMap{})
	}
	return jsonValue(m)
}

func (m *StringMap) Scan(src interface{}) error { return jsonScan(src, m) }

// DocList is a JSON array of open-ended documents (match clauses,
// trigger conditions).
type DocList []JSONMap

func (l DocList) Value() (driver.Value, error) {
	if l == nil {
		return jsonValue(DocList{})
	}
	return jsonValue(l)
}

func (l *DocList) Scan(src interface{}) error { return jsonScan(src, l) }

// AddressList is a JSON array of watched addresses
type AddressList []Address

func (l AddressList) Value() (driver.Value, error) {
	if l == nil {
		return jsonValue(AddressList{})
	}
	return jsonValue(l)
}

func (l *AddressList) Scan(src interface{}) error { return jsonScan(src, l) }

// RPCUrlList is a JSON array of RPC endpoints
type RPCUrlList []RPCUrl

func (l RPCUrlList) Value() (driver.Value, error) {
	if l == nil {
		return jsonValue(RPCUrlList{})
	}
	return jsonValue(l)
}

func (l *RPCUrlList) Scan(src interface{}) error { return jsonScan(src, l) }

// ValidationErrors maps a field name to its validation messages
type ValidationErrors map[string][]string

func (e ValidationErrors) Value() (driver.Value, error) {
	if e == nil {
		return jsonValue(ValidationErrors{})
	}
	return jsonValue(e)
}

func (e *ValidationErrors) Scan(src interface{}) error { return jsonScan(src, e) }

// Add appends a message under field.
func (e ValidationErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Error makes ValidationErrors usable as the cause of a classified
// request error; the API layer unwraps it to render field details.
func (e ValidationErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "invalid fields: " + strings.Join(fields, ", ")
}

// SecretValue round-trips as a JSON object so companion tables store the
// (source, value) pair in one column.

func (s SecretValue) Value() (driver.Value, error) { return jsonValue(s) }

func (s *SecretValue) Scan(src interface{}) error { return jsonScan(src, s) }
