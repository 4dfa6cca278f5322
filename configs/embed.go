// Package configs provides embedded configuration templates for emberboard.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in all distributions (source builds and binaries).
//
// The templates are used by:
//   - cmd/emberboard/cmd/config.go → creates user config at ~/.config/emberboard/config.yaml
//   - cmd/emberboard/cmd/config.go → creates .emberboard.yaml in a project root
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config/config.go NewConfig())
//  2. User config (~/.config/emberboard/config.yaml)
//  3. Project config (.emberboard.yaml)
//  4. Environment variables (EMBERBOARD_*)
//
// To modify templates, edit the .yaml files in this directory and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the template for user/machine-level configuration.
// Created by: `emberboard config init` at ~/.config/emberboard/config.yaml
// Contains: machine-specific settings like the data directory and logging.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the template for project-level configuration.
// Created by: `emberboard config init --project` at .emberboard.yaml
// Contains: deployment-specific settings like locales and sync tuning that
// are version-controlled with the deployment.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
