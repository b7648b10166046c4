package errlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestWriteAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unhandled.log")
	log, err := New(Options{Path: path, Now: fixedNow})
	require.NoError(t, err)

	require.NoError(t, log.Write("classify_sentiment", errors.New("weird payload")))
	require.NoError(t, log.Write("complete", errors.New("other failure")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "op=classify_sentiment")
	assert.Contains(t, lines[0], "weird payload")
	assert.Contains(t, lines[0], "2025-06-01T12:00:00Z")
	assert.Contains(t, lines[1], "op=complete")
}

func TestWriteNilErrorIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unhandled.log")
	log, err := New(Options{Path: path})
	require.NoError(t, err)

	require.NoError(t, log.Write("op", nil))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

type weirdError struct{ msg string }

func (e *weirdError) Error() string { return e.msg }

func TestWriteClassifiesInnermostType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unhandled.log")
	log, err := New(Options{Path: path, Now: fixedNow})
	require.NoError(t, err)

	wrapped := fmt.Errorf("outer: %w", &weirdError{msg: "inner"})
	require.NoError(t, log.Write("op", wrapped))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "class=errlog_weirderror")
}
