package engine

import "testing"

func TestIDWindow(t *testing.T) {
	w := newIDWindow(2)

	if !w.add("a") || !w.add("b") {
		t.Fatal("new ids rejected")
	}
	if w.add("a") {
		t.Error("duplicate accepted")
	}
	if !w.add("c") {
		t.Fatal("new id rejected")
	}
	// "a" was evicted
	if !w.add("a") {
		t.Error("evicted id still remembered")
	}
	if w.len() != 2 {
		t.Errorf("len() = %d, want 2", w.len())
	}
	if !w.add("") || !w.add("") {
		t.Error("empty ids must always pass")
	}
}
