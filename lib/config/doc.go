// Copyright 2026 The Peerstate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for peerstate
// tools.
//
// Configuration is loaded from a single file named by either the
// PEERSTATE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no search path and no per-field
// environment override.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// additionally refuses scrypt work factors below
// [ProductionMinWorkFactor].
//
// After loading, ${HOME}, ${PEERSTATE_ROOT}, and ${VAR:-default}
// patterns in path fields are expanded.
package config
