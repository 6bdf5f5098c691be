// Package db provides the embedded database schema.
package db

import _ "embed"

// Schema contains the DDL statements for all service tables. The statements
// are idempotent (IF NOT EXISTS) so they can run unconditionally at startup.
//
//go:embed migrations/001_schema.sql
var Schema string
