package models

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// IsPlaceholder reports whether s carries no curated value.
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == Placeholder
}

// Normalize enforces the placeholder invariant on r: blank strings become
// Placeholder, nil slices and maps become empty. Values inside raw
// passthrough maps are left untouched.
func Normalize(r *Record) {
	if r == nil {
		return
	}
	normalizeValue(reflect.ValueOf(r).Elem())
}

func normalizeValue(v reflect.Value) {
	switch v.Kind() {
	case reflect.String:
		if strings.TrimSpace(v.String()) == "" {
			v.SetString(Placeholder)
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if v.Type().Field(i).IsExported() {
				normalizeValue(v.Field(i))
			}
		}
	case reflect.Slice:
		if v.IsNil() {
			v.Set(reflect.MakeSlice(v.Type(), 0, 0))
			return
		}
		if v.Type().Elem().Kind() == reflect.String {
			compactStrings(v)
			return
		}
		for i := range v.Len() {
			normalizeValue(v.Index(i))
		}
	case reflect.Map:
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
	}
}

// compactStrings drops blank list elements; list members are never placeholders.
func compactStrings(v reflect.Value) {
	n := 0
	for i := range v.Len() {
		s := strings.TrimSpace(v.Index(i).String())
		if s == "" || s == Placeholder {
			continue
		}
		v.Index(n).SetString(s)
		n++
	}
	v.SetLen(n)
}

// StringLeaves calls fn for every string leaf of r with a dotted path.
// List elements are reported with their index.
func StringLeaves(r *Record, fn func(path, value string)) {
	walkStrings(reflect.ValueOf(r).Elem(), "", fn)
}

func walkStrings(v reflect.Value, path string, fn func(string, string)) {
	switch v.Kind() {
	case reflect.String:
		fn(path, v.String())
	case reflect.Struct:
		for i := range v.NumField() {
			f := v.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			name := strings.Split(f.Tag.Get("json"), ",")[0]
			if name == "" {
				name = f.Name
			}
			walkStrings(v.Field(i), joinPath(path, name), fn)
		}
	case reflect.Slice:
		for i := range v.Len() {
			walkStrings(v.Index(i), joinPath(path, strconv.Itoa(i)), fn)
		}
	}
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		panic("models: record not serializable: " + err.Error())
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		panic("models: record not deserializable: " + err.Error())
	}
	Normalize(&out)
	return &out
}
