package gate

import _ "embed"

//go:embed reviewer.schema.json
var reviewerSchemaJSON []byte
