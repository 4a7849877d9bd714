// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import "strings"

// RapidaEnvironment identifies the deployment environment the process runs in.
type RapidaEnvironment string

const (
	PRODUCTION  RapidaEnvironment = "production"
	DEVELOPMENT RapidaEnvironment = "development"
)

// Get returns the canonical lowercase environment name.
func (e RapidaEnvironment) Get() string {
	return string(e)
}

// IsProduction reports whether the environment is production.
func (e RapidaEnvironment) IsProduction() bool {
	return e == PRODUCTION
}

// FromEnvironmentStr maps a free-form environment string to a known
// environment, defaulting to development for anything unrecognized.
func FromEnvironmentStr(s string) RapidaEnvironment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production":
		return PRODUCTION
	case "development":
		return DEVELOPMENT
	default:
		return DEVELOPMENT
	}
}
