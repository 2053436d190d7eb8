package swagger

import _ "embed"

// OpenAPI is the scoreboard API description served at SpecPath.
//
//go:embed openapi.yaml
var OpenAPI []byte
