// Package migrations bundles the engine's SQL schema files so a
// deployed binary does not depend on the source tree being present.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
