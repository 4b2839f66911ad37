package mcp

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in the mcp package.
// The tests run against in-memory transports and an in-memory knowledge
// stack, so every goroutine must be accounted for.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
