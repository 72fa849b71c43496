package helpers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "failures.log")

	logger := NewLogger(tmpFile)

	logger.LogError("verifier", errors.New("test error"))
	logger.LogError("worker", errors.New("second error"))
	logger.LogInfo("crawl %s finished: %d failed", "sk", 2)

	data, err := os.ReadFile(tmpFile)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "[verifier] test error")
	assert.Contains(t, string(data), "[worker] second error")
	assert.Contains(t, string(data), "[info] crawl sk finished: 2 failed")
}

func TestNewFailureLogger(t *testing.T) {
	_, ok := NewFailureLogger("").(NopLogger)
	assert.True(t, ok)

	_, ok = NewFailureLogger(filepath.Join(t.TempDir(), "x.log")).(*Logger)
	assert.True(t, ok)
}
