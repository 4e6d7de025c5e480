package pkg

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCombinedWriter_Write(t *testing.T) {
	stdout := &strings.Builder{}
	stdout.WriteString("already-here ")
	logFile := &strings.Builder{}

	cw := NewCombinedWriter(stdout, logFile)
	require.Len(t, cw.Writers, 2)

	n, err := cw.Write([]byte("rep counted"))
	require.NoError(t, err)
	assert.Equal(t, 2*len("rep counted"), n)

	assert.Equal(t, "already-here rep counted", stdout.String())
	assert.Equal(t, "rep counted", logFile.String())
}

func TestCombinedWriter_Write_WithErrors(t *testing.T) {
	sb := &strings.Builder{}
	cw := NewCombinedWriter(failingWriter{err: errors.New("disk full")}, sb, failingWriter{err: errors.New("closed")})

	n, err := cw.Write([]byte("session saved"))
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.EqualError(t, err, "disk full; closed")

	// still written to the healthy writer
	assert.Equal(t, len("session saved"), n)
	assert.Equal(t, "session saved", sb.String())
}

type failingWriter struct {
	err error
}

func (fw failingWriter) Write(_ []byte) (int, error) {
	return 0, fw.err
}
