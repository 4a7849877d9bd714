// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ============================================================================
// Side-channel decoding
// ============================================================================

// SideChannel carries caller metadata smuggled alongside the media stream:
// base64 blobs on the start frame or the WS query string. Everything here is
// best effort; a PBX that sends garbage gets an empty side channel, never an
// error.
type SideChannel struct {
	Name      string                 `mapstructure:"name"`
	CallerID  string                 `mapstructure:"caller_id"`
	DID       string                 `mapstructure:"did"`
	Direction string                 `mapstructure:"direction"`
	Params    map[string]interface{} `mapstructure:",remain"`
}

// DecodeCZData decodes a strict base64-encoded JSON object. Returns nil on
// any failure.
func DecodeCZData(encoded string) map[string]interface{} {
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// DecodeExtraData decodes the looser extraData blob: base64 of a JSON-ish
// object where key=value pairs appear unquoted and objects may carry trailing
// commas. The blob is normalized to valid JSON before decoding. Returns nil
// on any failure.
func DecodeExtraData(encoded string) map[string]interface{} {
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some PBX builds use URL-safe alphabets for the same field.
		raw, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return nil
		}
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(normalizeLooseJSON(string(raw))), &out); err != nil {
		return nil
	}
	return canonicalizeExtraKeys(out)
}

// canonicalizeExtraKeys maps PBX-dialect extraData keys onto the canonical
// side-channel names. Canonical keys already present win.
func canonicalizeExtraKeys(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	if v, ok := m["CallCli"]; ok {
		if _, exists := m["caller_id"]; !exists {
			m["caller_id"] = v
		}
	}
	return m
}

var (
	looseKeyRe          = regexp.MustCompile(`([{,]\s*)([A-Za-z0-9_\-]+)\s*[=:]\s*`)
	looseBareValueRe    = regexp.MustCompile(`:\s*([^"\s,\[\]{}][^,}\]]*)`)
	looseTrailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	looseNumericLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// normalizeLooseJSON quotes bare keys and values and strips trailing commas,
// turning `{name=Asha, city=Pune,}` into `{"name":"Asha","city":"Pune"}`.
func normalizeLooseJSON(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if !strings.HasPrefix(s, "{") {
		s = "{" + s + "}"
	}

	s = looseKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = looseBareValueRe.ReplaceAllStringFunc(s, func(m string) string {
		value := strings.TrimSpace(strings.TrimPrefix(m, ":"))
		switch {
		case value == "true" || value == "false" || value == "null":
			return ": " + value
		case looseNumericLiteral.MatchString(value):
			return ": " + value
		default:
			return `: "` + value + `"`
		}
	})
	s = looseTrailingComma.ReplaceAllString(s, `$1`)
	return s
}

// ParseSideChannel merges every side-channel source for a call. Precedence,
// lowest to highest: extraData blob, czdata blob, explicit query parameters.
func ParseSideChannel(query url.Values, start *StartPayload) *SideChannel {
	merged := map[string]interface{}{}

	apply := func(m map[string]interface{}) {
		for k, v := range m {
			merged[k] = v
		}
	}

	if start != nil {
		apply(DecodeExtraData(start.ExtraData))
		apply(DecodeCZData(start.CZData))
		apply(start.CustomParameters)
	}
	if query != nil {
		apply(DecodeExtraData(query.Get("extra")))
		apply(DecodeCZData(query.Get("czdata")))
		for _, key := range []string{"caller_id", "did", "direction", "name"} {
			if v := query.Get(key); v != "" {
				merged[key] = v
			}
		}
	}

	var sc SideChannel
	if err := mapstructure.Decode(merged, &sc); err != nil {
		return &SideChannel{Params: merged}
	}
	if sc.Params == nil {
		sc.Params = map[string]interface{}{}
	}
	return &sc
}
