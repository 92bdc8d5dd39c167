package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var got []bool
	for i := 0; i < 6; i++ {
		got = append(got, s.Allow())
	}
	want := []bool{true, false, false, true, false, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pattern = %v, want %v", got, want)
		}
	}

	s.Set(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow() {
			t.Fatalf("disabled sampler must allow everything")
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := []struct {
		spec        string
		keep, every int
	}{
		{"1/50", 1, 50},
		{" 2 / 10 ", 2, 10},
		{"20", 1, 20},
		{"5%", 5, 100},
		{"", 0, 0},
		{"0", 0, 0},
		{"abc", 0, 0},
		{"1/0", 0, 0},
	}
	for _, tc := range cases {
		k, e := parseRatioSpec(tc.spec)
		if k != tc.keep || e != tc.every {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", tc.spec, k, e, tc.keep, tc.every)
		}
	}
}

func TestStatus(t *testing.T) {
	if Status(nil) != "ok" {
		t.Fatalf("nil error must be ok")
	}
	if Status(fmt.Errorf("poll: %w", context.Canceled)) != "cancelled" {
		t.Fatalf("cancellation must be cancelled")
	}
	if Status(errors.New("boom")) != "fail" {
		t.Fatalf("plain error must be fail")
	}
}

func TestSummarizeStringsAndRound(t *testing.T) {
	if s, cut := SummarizeStrings([]string{"a", "b", "c"}, 2); s != "a, b" || !cut {
		t.Fatalf("SummarizeStrings = %q, %v", s, cut)
	}
	if s, cut := SummarizeStrings([]string{"a"}, 2); s != "a" || cut {
		t.Fatalf("SummarizeStrings = %q, %v", s, cut)
	}
	if RoundMS(1499*time.Microsecond) != time.Millisecond || RoundMS(-time.Second) != 0 {
		t.Fatalf("RoundMS mismatch")
	}
}

type failingSink struct{}

func (failingSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterFansOutAndFlushes(t *testing.T) {
	var a, b bytes.Buffer
	w := newAsyncWriter([]io.Writer{&a, &b}, 16)
	for i := 0; i < 100; i++ {
		if err := w.Write([]byte(fmt.Sprintf("line %d\n", i))); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, buf := range []*bytes.Buffer{&a, &b} {
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 100 || lines[0] != "line 0" || lines[99] != "line 99" {
			t.Fatalf("sink got %d lines", len(lines))
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush after Close: %v", err)
	}
}

func TestAsyncWriterReportsSinkErrors(t *testing.T) {
	w := newAsyncWriter([]io.Writer{failingSink{}}, 1)
	_ = w.Write([]byte("hello\n"))
	if err := w.Close(); err == nil {
		t.Fatalf("expected sink error on Close")
	}
}
