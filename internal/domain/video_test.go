package domain

import (
	"errors"
	"testing"
)

func TestNamespaceOwns(t *testing.T) {
	t.Parallel()

	ns, err := NewNamespace("storybird1/")
	if err != nil {
		t.Fatalf("NewNamespace() error = %v", err)
	}

	tests := []struct {
		publicID string
		want     bool
	}{
		{publicID: "storybird1/video123", want: true},
		{publicID: "storybird1", want: true},
		{publicID: "storybird1/corbeille/video123", want: true},
		{publicID: "storybird10/video123", want: false},
		{publicID: "other/video123", want: false},
		{publicID: "", want: false},
	}

	for _, tt := range tests {
		if got := ns.Owns(tt.publicID); got != tt.want {
			t.Fatalf("Owns(%q) = %v, want %v", tt.publicID, got, tt.want)
		}
	}
}

func TestNamespaceTrash(t *testing.T) {
	t.Parallel()

	ns, err := NewNamespace("storybird1")
	if err != nil {
		t.Fatalf("NewNamespace() error = %v", err)
	}

	if got := ns.TrashID("storybird1/sub/video123"); got != "storybird1/corbeille/video123" {
		t.Fatalf("TrashID() = %q, want storybird1/corbeille/video123", got)
	}
	if !ns.InTrash("storybird1/corbeille/video123") {
		t.Fatal("InTrash() = false, want true")
	}
	if ns.InTrash("storybird1/video123") {
		t.Fatal("InTrash() = true, want false")
	}
	if ns.ListPrefix() != "storybird1/" {
		t.Fatalf("ListPrefix() = %q, want storybird1/", ns.ListPrefix())
	}
}

func TestNewNamespaceEmpty(t *testing.T) {
	t.Parallel()

	if _, err := NewNamespace(" / "); !errors.Is(err, ErrValidation) {
		t.Fatalf("NewNamespace() error = %v, want ErrValidation", err)
	}
}
