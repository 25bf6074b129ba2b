package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CreateThenList(t *testing.T) {
	t.Setenv("ARTICLES_LOG__LEVEL", "error")
	var out bytes.Buffer

	require.NoError(t, run([]string{"create", "-title", "Hello CLI"}, &out))
	id, err := uuid.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	// each run builds a fresh in-memory service
	out.Reset()
	require.NoError(t, run([]string{"list"}, &out))
	assert.Equal(t, "[]\n", out.String())
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("ARTICLES_LOG__LEVEL", "error")
	var out bytes.Buffer

	assert.Error(t, run(nil, &out))
	assert.ErrorContains(t, run([]string{"frobnicate"}, &out), "unknown command")
	assert.ErrorContains(t, run([]string{"get", "-id", "nope"}, &out), "invalid id")
	assert.Error(t, run([]string{"publish", "-id", uuid.NewString()}, &out))
}
