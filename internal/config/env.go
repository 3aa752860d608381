package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

var (
	// ErrInvalidConfig is returned when the target is not a pointer to a struct.
	ErrInvalidConfig = errors.New("config must be a pointer to a struct")

	// ErrVarNotSet is returned when a variable without a default is unset.
	ErrVarNotSet = errors.New("env var not set")

	// ErrUnsupportedVarType is returned for fields of a type Parse cannot fill.
	ErrUnsupportedVarType = errors.New("unsupported env var type")
)

var durationType = reflect.TypeOf(time.Duration(0))

// LookupFunc resolves a variable name; os.LookupEnv is the default.
type LookupFunc func(name string) (string, bool)

// Parse fills the struct pointed to by cfg from the environment. Fields are
// named by `env` tags, fall back to `default` tags, and nested structs add
// their `envPrefix` to the names of their fields. Supported kinds are
// string, int, bool and time.Duration.
func Parse(cfg any) error {
	return ParseWith(cfg, os.LookupEnv)
}

// ParseWith is Parse with a custom lookup.
func ParseWith(cfg any, lookup LookupFunc) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return ErrInvalidConfig
	}
	return parse(lookup, "", v.Elem())
}

func parse(lookup LookupFunc, prefix string, v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fv := v.Field(i)

		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			if err := parse(lookup, prefix+field.Tag.Get("envPrefix"), fv); err != nil {
				return err
			}
			continue
		}

		if err := parseField(lookup, prefix, field, fv); err != nil {
			return fmt.Errorf("parse field: %w", err)
		}
	}
	return nil
}

func parseField(lookup LookupFunc, prefix string, field reflect.StructField, fv reflect.Value) error {
	tag := field.Tag.Get("env")
	if tag == "" {
		return nil
	}
	name := prefix + tag

	raw, ok := lookup(name)
	if !ok {
		def, hasDefault := field.Tag.Lookup("default")
		if !hasDefault {
			return fmt.Errorf("%w: %s", ErrVarNotSet, name)
		}
		raw = def
	}

	if field.Type == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch field.Type.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type.Bits())
		if err != nil {
			return fmt.Errorf("invalid int for %s: %w", name, err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %w", name, err)
		}
		fv.SetBool(b)
	default:
		return fmt.Errorf("%w: %s (%v)", ErrUnsupportedVarType, name, field.Type.Kind())
	}
	return nil
}
