package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrefixWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	pw := &prefixWriter{w: &buf}
	pw.copyLines(strings.NewReader("one\r\ntwo\npartial"), func() string { return "build" })
	want := "[build] one\n[build] two\n[build] partial\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func TestPrintTerminals(t *testing.T) {
	var buf bytes.Buffer
	if err := printTerminals(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "ALIAS") {
		t.Fatalf("missing header: %q", buf.String())
	}
}
