package blob

import (
	"context"
	"testing"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()

	url, err := m.Put(context.Background(), "images/a.png", []byte{1, 2, 3}, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "memory://images/a.png" {
		t.Errorf("url = %q", url)
	}

	got, ok := m.Get("images/a.png")
	if !ok {
		t.Fatal("blob not found after Put")
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Errorf("data = %v", got)
	}

	if _, ok := m.Get("images/missing.png"); ok {
		t.Error("Get returned a blob for an unknown key")
	}
}

func TestMemoryPutCopiesData(t *testing.T) {
	m := NewMemory()
	data := []byte("original")
	if _, err := m.Put(context.Background(), "k", data, "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data[0] = 'X'

	got, _ := m.Get("k")
	if string(got) != "original" {
		t.Errorf("stored blob aliased caller's slice: %q", got)
	}
}
