// Package config provides environment variable loading for configuration
// structs.
//
// Environment variable names follow the pattern:
//
//	{Prefix}_{STAGE}_{FIELD}
//
// For named nested structs, the field name becomes a path segment:
//
//	{Prefix}_{STAGE}_{STRUCT}_{FIELD}
//
// Anonymous (embedded) struct fields are flattened and do not add a segment.
//
// Go field names are converted from CamelCase to UPPER_SNAKE_CASE:
//
//	Capacity      → CAPACITY
//	FlushInterval → FLUSH_INTERVAL
//	ReadBatchSize → READ_BATCH_SIZE
//
// Supported field types: string, bool, int*, uint*, float*, time.Duration,
// and string slices, which parse as comma-separated lists. Fields with other
// types (functions, interfaces, channels, pointers) are silently skipped.
//
// Example with gostream.SourceConfig and stage "source":
//
//	GOSTREAM_SOURCE_NAME=ingest
//	GOSTREAM_SOURCE_CAPACITY=65536
//
// Example with a broker adapter config and stage "orders":
//
//	GOSTREAM_ORDERS_BROKERS=kafka-1:9092, kafka-2:9092
//	GOSTREAM_ORDERS_TOPIC=orders
//	GOSTREAM_ORDERS_READ_TIMEOUT=10s
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader reads environment variables into configuration structs.
type Loader struct {
	// Prefix for environment variable names.
	// Default: "GOSTREAM".
	Prefix string

	// lookup overrides os.LookupEnv for testing.
	lookup func(string) (string, bool)
}

func (l Loader) prefix() string {
	if l.Prefix == "" {
		return "GOSTREAM"
	}
	return l.Prefix
}

func (l Loader) lookupEnv(key string) (string, bool) {
	if l.lookup != nil {
		return l.lookup(key)
	}
	return os.LookupEnv(key)
}

// Load populates the struct pointed to by dst with values from environment
// variables. The stage parameter identifies the pipeline component and
// becomes the second segment of the variable name.
//
// Only fields with set environment variables are modified; all other fields
// retain their current values. This makes Load suitable for overlaying
// environment overrides on top of programmatic defaults.
func (l Loader) Load(stage string, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: dst must be a pointer to a struct, got %T", dst)
	}
	root := l.prefix() + "_" + normalizeStage(stage)
	return walk(root, v.Elem(), func(key string, fv reflect.Value) error {
		raw, ok := l.lookupEnv(key)
		if !ok {
			return nil
		}
		return setValue(fv, raw, key)
	})
}

// Keys returns the environment variable names that [Loader.Load] would check
// for the given config struct. Useful for documentation and debugging.
// The dst parameter may be a struct value or a pointer to a struct.
func (l Loader) Keys(stage string, dst any) []string {
	v := reflect.ValueOf(dst)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	root := l.prefix() + "_" + normalizeStage(stage)
	var keys []string
	walk(root, reflect.New(v.Type()).Elem(), func(key string, _ reflect.Value) error {
		keys = append(keys, key)
		return nil
	})
	return keys
}

// Load populates dst using the default Loader with prefix "GOSTREAM".
func Load(stage string, dst any) error {
	return Loader{}.Load(stage, dst)
}

// Keys returns env var names using the default Loader with prefix "GOSTREAM".
func Keys(stage string, dst any) []string {
	return Loader{}.Keys(stage, dst)
}

// walk visits every loadable leaf field of a struct value, depth first, and
// calls fn with the field's derived key. Named struct fields add a path
// segment; embedded structs are flattened into the parent's namespace.
func walk(prefix string, v reflect.Value, fn func(key string, fv reflect.Value) error) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)

		// Exported fields promoted through an unexported embedded struct
		// still load; any other unexported field is skipped.
		if !field.IsExported() {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				if err := walk(prefix, fv, fn); err != nil {
					return err
				}
			}
			continue
		}

		key := prefix
		if !field.Anonymous {
			key = prefix + "_" + toUpperSnake(field.Name)
		}

		if field.Type.Kind() == reflect.Struct {
			if err := walk(key, fv, fn); err != nil {
				return err
			}
			continue
		}
		if !loadable(field.Type) {
			continue
		}

		if err := fn(key, fv); err != nil {
			return err
		}
	}
	return nil
}

func loadable(t reflect.Type) bool {
	// time.Duration is int64 underneath but parses as "5s", "100ms".
	if t == durationType {
		return true
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func setValue(v reflect.Value, raw, key string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		v.SetInt(int64(d))
		return nil
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String {
		v.Set(splitList(v.Type(), raw))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		v.SetBool(b)
	}
	return nil
}

// splitList parses a comma-separated list, trimming space around items and
// dropping empty ones.
func splitList(t reflect.Type, raw string) reflect.Value {
	parts := strings.Split(raw, ",")
	out := reflect.MakeSlice(t, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		item := reflect.New(t.Elem()).Elem()
		item.SetString(p)
		out = reflect.Append(out, item)
	}
	return out
}

// normalizeStage converts a stage name to a valid env var segment.
// Lowercase letters are uppercased, hyphens/spaces/underscores become
// underscores, and other characters are dropped.
func normalizeStage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == ' ' || r == '_':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// toUpperSnake converts a Go CamelCase field name to UPPER_SNAKE_CASE.
//
//	Capacity      → CAPACITY
//	FlushInterval → FLUSH_INTERVAL
//	URLPath       → URL_PATH
//	HTTPClient    → HTTP_CLIENT
func toUpperSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4) // slightly over-allocate for underscores
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteRune('_')
			} else if unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
