// Package schema provides the embedded JSON schema of rule files.
package schema

import _ "embed"

// Rules is the JSON schema every rule file is validated against.
//
//go:embed rules.schema.json
var Rules []byte
