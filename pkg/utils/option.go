// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Option is a loose bag of provider/model options keyed by dotted paths
// (e.g. "listen.language", "speak.voice.id"). Values arrive from agent
// configuration or upstream requests and may be typed or stringly; the
// getters coerce where it is unambiguous.
type Option map[string]interface{}

// GetString returns the value at key as a string.
func (o Option) GetString(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("option: no value for %q", key)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("option: %q is not a string", key)
	}
}

// GetBool returns the value at key as a bool. String forms ("true", "1")
// are accepted because options frequently round-trip through JSON/env.
func (o Option) GetBool(key string) (bool, error) {
	v, ok := o[key]
	if !ok {
		return false, fmt.Errorf("option: no value for %q", key)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(t))
	default:
		return false, fmt.Errorf("option: %q is not a bool", key)
	}
}

// GetInt returns the value at key as an int.
func (o Option) GetInt(key string) (int, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("option: no value for %q", key)
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("option: %q is not an int", key)
	}
}

// GetFloat64 returns the value at key as a float64.
func (o Option) GetFloat64(key string) (float64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("option: no value for %q", key)
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("option: %q is not a float", key)
	}
}

// GetStrings returns the value at key as a string slice. Accepts native
// slices and the bracketed string form "[a b c]" some dashboards send.
func (o Option) GetStrings(key string) ([]string, error) {
	v, ok := o[key]
	if !ok {
		return nil, fmt.Errorf("option: no value for %q", key)
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("option: %q has a non-string element", key)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		trimmed := strings.Trim(strings.TrimSpace(t), "[]")
		if trimmed == "" {
			return nil, nil
		}
		return strings.Fields(trimmed), nil
	default:
		return nil, fmt.Errorf("option: %q is not a string list", key)
	}
}
