package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealThenOpen(t *testing.T) {
	t.Setenv(passphraseEnv, "")
	path := filepath.Join(t.TempDir(), "betfair.enc")

	var out bytes.Buffer
	require.NoError(t, seal([]string{"-out", path}, strings.NewReader("hunter2\ncorrect horse\n"), &out))
	assert.Contains(t, out.String(), path)

	out.Reset()
	require.NoError(t, open([]string{"-in", path}, strings.NewReader("correct horse\n"), &out))
	assert.True(t, strings.HasSuffix(out.String(), "hunter2\n"))

	err := open([]string{"-in", path}, strings.NewReader("wrong\n"), &bytes.Buffer{})
	require.Error(t, err)
}

func TestPassphraseFromEnv(t *testing.T) {
	t.Setenv(passphraseEnv, "from-env")
	path := filepath.Join(t.TempDir(), "betfair.enc")

	require.NoError(t, seal([]string{"-out", path}, strings.NewReader("pw\n"), &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, open([]string{"-in", path}, strings.NewReader(""), &out))
	assert.Equal(t, "pw\n", out.String())
}

func TestSealRejectsEmptyPassword(t *testing.T) {
	t.Setenv(passphraseEnv, "k")
	err := seal([]string{"-out", filepath.Join(t.TempDir(), "x")}, strings.NewReader("\n"), &bytes.Buffer{})
	require.Error(t, err)
}
