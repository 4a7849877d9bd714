// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"
)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// ToJson renders v as a JSON string, returning "{}" on marshal failure so
// callers can log it unconditionally.
func ToJson(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Go runs fn on a new goroutine with panic recovery. The context is only
// consulted before starting; fn is responsible for honoring cancellation.
func Go(ctx context.Context, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered panic in goroutine: %v\n%s", r, debug.Stack())
			}
		}()
		if ctx.Err() != nil {
			return
		}
		fn()
	}()
}

