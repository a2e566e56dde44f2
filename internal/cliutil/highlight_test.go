package cliutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusPlainWriterHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	Status(&buf, "server started on %s", ":8181")
	out := buf.String()
	assert.Contains(t, out, "OK server started on :8181")
	assert.False(t, strings.Contains(out, "\x1b["))
}

func TestFailPlainWriterHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	Fail(&buf, "bind failed: %s", "address in use")
	out := buf.String()
	assert.Contains(t, out, "FAIL bind failed: address in use")
	assert.False(t, strings.Contains(out, "\x1b["))
}

func TestDumpIncludesHeadingAndBody(t *testing.T) {
	var buf bytes.Buffer
	Dump(&buf, "engine stats", "series: 12\nsamples: 3400")
	out := buf.String()
	assert.Contains(t, out, "engine stats")
	assert.Contains(t, out, "series: 12")
	assert.Contains(t, out, "samples: 3400")
}
