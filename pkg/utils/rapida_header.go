// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

// Canonical header keys shared by the HTTP surfaces.
const (
	HEADER_API_KEY         = "x-api-key"
	HEADER_AUTH_KEY        = "authorization"
	HEADER_SOURCE_KEY      = "x-client-source"
	HEADER_ENVIRONMENT_KEY = "x-environment"
	HEADER_REGION_KEY      = "x-region"
)
