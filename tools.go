//go:build tools
// +build tools

// Package tools tracks the Go tools run by `go generate` (mockgen) as
// module dependencies, so a fresh checkout resolves them from go.sum.
package chat_sync

import (
	_ "go.uber.org/mock/mockgen"
)
