// Package config contains the configuration sections shared by the service binaries.
// Every section validates itself and renders itself for the startup log.
package config

import (
	"fmt"
	"strings"
)

// section renders a titled block of key/value pairs for the startup log.
// kv alternates keys and values.
func section(title string, kv ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n--- %s ---\n", title)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, "  %v: %v\n", kv[i], kv[i+1])
	}
	return b.String()
}
