package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/example/poster-shop/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_FromArgument(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "poster-wall-42"})

	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.CheckPassword("poster-wall-42", hash))
}

func TestHashPassword_FromStdin(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("poster-wall-42\n"))
	cmd.SetArgs([]string{"hash-password"})

	require.NoError(t, cmd.Execute())

	assert.True(t, auth.CheckPassword("poster-wall-42", strings.TrimSpace(out.String())))
}

func TestHashPassword_TooShort(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"hash-password", "short"})

	assert.Error(t, cmd.Execute())
}
