package api

import (
	"os"
	"testing"

	"github.com/davidocha/coinvault/internal/testutil/dblock"
)

func TestMain(m *testing.M) {
	release := dblock.Acquire()
	code := m.Run()
	release()
	os.Exit(code)
}
