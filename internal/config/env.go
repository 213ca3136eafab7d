package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// EnvLoader overrides configuration fields from environment variables. The
// variable name is the prefix followed by the yaml tag path in upper case,
// e.g. RESALLOC_AUTOMATION_ACTIVE_FLOOR.
type EnvLoader struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvLoader creates a new environment loader
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix: prefix,
		lookup: os.LookupEnv,
	}
}

// Load applies every set variable to config.
func (el *EnvLoader) Load(config *Config) error {
	return el.loadStruct(reflect.ValueOf(config).Elem(), el.prefix)
}

// loadStruct recursively loads a struct from environment variables
func (el *EnvLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		fieldName, _, _ := strings.Cut(fieldType.Tag.Get("yaml"), ",")
		if fieldName == "-" {
			continue
		}
		if fieldName == "" {
			fieldName = fieldType.Name
		}
		envName := el.buildEnvName(prefix, fieldName)

		switch field.Kind() {
		case reflect.Struct:
			if err := el.loadStruct(field, envName); err != nil {
				return err
			}
		case reflect.Slice:
			if err := el.loadSlice(field, envName); err != nil {
				return err
			}
		default:
			if err := el.loadField(field, envName); err != nil {
				return err
			}
		}
	}

	return nil
}

// loadField loads a single field from environment variable
func (el *EnvLoader) loadField(field reflect.Value, envName string) error {
	value, ok := el.lookup(envName)
	if !ok || value == "" {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", envName, err)
			}
			field.SetInt(int64(duration))
			return nil
		}
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", envName, err)
		}
		field.SetInt(intVal)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		uintVal, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer for %s: %w", envName, err)
		}
		field.SetUint(uintVal)

	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", envName, err)
		}
		field.SetFloat(floatVal)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", envName, err)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type %s for %s", field.Kind(), envName)
	}

	return nil
}

// loadSlice splits a comma separated string slice.
func (el *EnvLoader) loadSlice(field reflect.Value, envName string) error {
	value, ok := el.lookup(envName)
	if !ok || value == "" {
		return nil
	}
	if field.Type().Elem().Kind() != reflect.String {
		return fmt.Errorf("unsupported slice element type %s for %s", field.Type().Elem().Kind(), envName)
	}

	parts := strings.Split(value, ",")
	slice := reflect.MakeSlice(field.Type(), 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			slice = reflect.Append(slice, reflect.ValueOf(part))
		}
	}
	field.Set(slice)
	return nil
}

// buildEnvName builds environment variable name from prefix and field name
func (el *EnvLoader) buildEnvName(prefix, fieldName string) string {
	envName := strings.ToUpper(fieldName)
	envName = strings.ReplaceAll(envName, "-", "_")
	envName = strings.ReplaceAll(envName, ".", "_")

	if prefix != "" {
		return prefix + "_" + envName
	}
	return envName
}
