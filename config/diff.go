package config

import (
	"reflect"
	"strings"
)

func diffEvent(old, new any) Event {
	evt := Event{OldConfig: old, NewConfig: new}
	if old == nil || new == nil {
		return evt
	}
	ov, nv := reflect.Indirect(reflect.ValueOf(old)), reflect.Indirect(reflect.ValueOf(new))
	if ov.Type() != nv.Type() {
		return evt
	}
	evt.ChangedKeys = diffValues(ov, nv, "", nil)
	return evt
}

// diffValues walks structs field by field and reports leaves that differ.
func diffValues(ov, nv reflect.Value, prefix string, keys []string) []string {
	if ov.Kind() != reflect.Struct {
		if !reflect.DeepEqual(ov.Interface(), nv.Interface()) {
			keys = append(keys, prefix)
		}
		return keys
	}
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := fieldKey(f)
		if prefix != "" {
			key = prefix + "." + key
		}
		keys = diffValues(ov.Field(i), nv.Field(i), key, keys)
	}
	return keys
}

func fieldKey(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("config"), ","); tag != "" && tag != "-" {
		return tag
	}
	return f.Name
}
