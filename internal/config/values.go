package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// GetValue retrieves a config value by dot-separated path
// (e.g. "merge.default_strategy") and formats it as a string.
func (c *Config) GetValue(path string) (string, error) {
	field, err := fieldByPath(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return "", err
	}
	return formatValue(field), nil
}

// SetValue sets a config value by dot-separated path, parsing the value
// according to the field's type.
func (c *Config) SetValue(path, value string) error {
	field, err := fieldByPath(reflect.ValueOf(c).Elem(), path)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set config key: %s", path)
	}
	return setField(field, value)
}

// fieldByPath walks a struct value along a dot-separated path of yaml
// tags (field names also accepted, case-insensitive).
func fieldByPath(v reflect.Value, path string) (reflect.Value, error) {
	for path != "" {
		name, rest, _ := strings.Cut(path, ".")

		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", name)
		}

		field := reflect.Value{}
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
			if tag == name || strings.EqualFold(t.Field(i).Name, name) {
				field = v.Field(i)
				break
			}
		}
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", name)
		}

		v = field
		path = rest
	}
	return v, nil
}

// setField parses value into the field's type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", value, err)
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", value, err)
		}
		field.SetInt(i)
	case reflect.Bool:
		field.SetBool(parseBool(value))
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		field.Set(reflect.ValueOf(splitList(value)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// formatValue renders a field for display.
func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int64:
		if v.Type() == reflect.TypeOf(time.Duration(0)) {
			return time.Duration(v.Int()).String()
		}
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Slice:
		if v.Len() == 0 {
			return "[]"
		}
		parts := make([]string, v.Len())
		for i := 0; i < v.Len(); i++ {
			parts[i] = formatValue(v.Index(i))
		}
		return strings.Join(parts, ", ")
	case reflect.Struct:
		return fmt.Sprintf("%+v", v.Interface())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// AllConfigPaths returns every known config path.
func AllConfigPaths() []string {
	return []string{
		"version",
		"server.host",
		"server.port",
		"server.max_port_attempts",
		"git.binary",
		"git.timeout",
		"git.proxy.http",
		"git.proxy.https",
		"git.proxy.no_proxy",
		"merge.default_strategy",
		"merge.no_ff",
		"merge.auto_stash",
		"merge.keep_branches",
		"worktree.root",
		"worktree.auto_prune",
		"db.dialect",
		"db.dsn",
		"log.level",
		"log.format",
	}
}
