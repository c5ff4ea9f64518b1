// Package binder decodes HTTP requests into typed structs: JSON bodies,
// query strings and router path parameters.
//
// Binders compose: a handler for POST /admin/requests/{id}/cancel can bind
// the path id and the JSON body into one struct.
package binder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// MaxJSONSize bounds JSON request bodies.
const MaxJSONSize = 1 << 20

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrMissingContentType   = errors.New("missing content type")
	ErrFailedToParseJSON    = errors.New("failed to parse JSON request body")
	ErrFailedToParseQuery   = errors.New("failed to parse query parameters")
	ErrFailedToParsePath    = errors.New("failed to parse path parameters")
)

// JSON decodes a strict application/json body: unknown fields, trailing
// data and bodies over MaxJSONSize are rejected.
func JSON() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, ct)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxJSONSize+1))
		if err != nil {
			return fmt.Errorf("%w: read body: %v", ErrFailedToParseJSON, err)
		}
		if len(body) > MaxJSONSize {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrFailedToParseJSON, MaxJSONSize)
		}

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: empty body", ErrFailedToParseJSON)
			}
			return fmt.Errorf("%w: %v", ErrFailedToParseJSON, err)
		}
		if dec.More() {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrFailedToParseJSON)
		}
		return nil
	}
}

// Query binds fields tagged `query:"name"` from the URL query.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", func(name string) []string {
			return r.URL.Query()[name]
		}, ErrFailedToParseQuery)
	}
}

// Path binds fields tagged `path:"name"` using a router extractor such as
// chi.URLParam.
func Path(extract func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extract == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}
		return bindToStruct(v, "path", func(name string) []string {
			if s := extract(r, name); s != "" {
				return []string{s}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}

func bindToStruct(v any, tag string, lookup func(name string) []string, bindErr error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a non-nil pointer to struct", bindErr)
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rv.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		name, ok := sf.Tag.Lookup(tag)
		if !ok || !field.CanSet() {
			continue
		}
		name, _, _ = strings.Cut(name, ",")
		if name == "-" || name == "" {
			continue
		}
		values := lookup(name)
		if len(values) == 0 {
			continue
		}
		if err := setField(field, values); err != nil {
			return fmt.Errorf("%w: field %s: %v", bindErr, name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, values []string) error {
	t := field.Type()
	if t.Kind() == reflect.Pointer {
		if field.IsNil() {
			field.Set(reflect.New(t.Elem()))
		}
		return setField(field.Elem(), values)
	}
	if t.Kind() == reflect.Slice {
		var all []string
		for _, v := range values {
			all = append(all, strings.Split(v, ",")...)
		}
		slice := reflect.MakeSlice(t, len(all), len(all))
		for i, s := range all {
			if err := setField(slice.Index(i), []string{strings.TrimSpace(s)}); err != nil {
				return err
			}
		}
		field.Set(slice)
		return nil
	}

	s := values[0]
	switch t.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("invalid int value %q", s)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("invalid uint value %q", s)
		}
		field.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid bool value %q", s)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported type %s", t)
	}
	return nil
}
