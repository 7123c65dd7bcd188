package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/clipstream/db"
)

type fakeLister struct {
	list []db.Binding
	err  error
}

func (f fakeLister) ListBindings(context.Context, bool) ([]db.Binding, error) {
	return f.list, f.err
}

func TestRunPrintsBindings(t *testing.T) {
	joined := time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)
	store := fakeLister{list: []db.Binding{
		{ChannelID: "UCaaaaaaaaaaaaaaaaaaaaaa", Email: "a@example.com", CreatedAt: joined},
		{ChannelID: "UCbbbbbbbbbbbbbbbbbbbbbb"},
	}}

	var out bytes.Buffer
	if err := run(context.Background(), store, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"  1. a@example.com | Channel: UCaaaaaaaaaaaaaaaaaaaaaa | Joined: 2024-03-09T12:30:00Z\n",
		"  2. N/A | Channel: UCbbbbbbbbbbbbbbbbbbbbbb | Joined: N/A\n",
		"Total: 2\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), fakeLister{}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out.String(), "Total: 0") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunStoreError(t *testing.T) {
	err := run(context.Background(), fakeLister{err: errors.New("down")}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("run() error = %v", err)
	}
}
