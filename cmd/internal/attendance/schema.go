package attendance

import (
	"embed"
	"fmt"
)

//go:embed schema/*.sql
var schemaFS embed.FS

func readSchema(name string) (string, error) {
	b, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return "", fmt.Errorf("attendance: read schema %s: %w", name, err)
	}
	return string(b), nil
}
