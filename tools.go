//go:build tools

// Pins build/test tooling so "go mod tidy" keeps it in go.mod. Gremlins
// is invoked out-of-process (make mutate), never imported by runtime code.
package main

import (
	_ "github.com/go-gremlins/gremlins/cmd/gremlins"
)
