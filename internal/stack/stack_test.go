package stack

import "testing"

func TestEmpty(t *testing.T) {
	s := New[string]()

	if !s.Empty() {
		t.Errorf("new stack is not empty")
	}

	s.Push("33")

	if s.Empty() {
		t.Errorf("despite storing a value the stack is still empty")
	}
}

func TestEmptyPop(t *testing.T) {
	s := New[int]()

	_, err := s.Pop()
	if err == nil {
		t.Errorf("expected an error popping from an empty stack")
	}
}

func TestPushPop(t *testing.T) {
	s := New[string]()

	s.Push("33")

	out, err := s.Pop()
	if err != nil {
		t.Errorf("we shouldn't get an error popping from our stack")
	}
	if out != "33" {
		t.Errorf("we retrieved a value from our stack, but it was wrong")
	}
}

func TestLIFOOrder(t *testing.T) {
	s := New[int]()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	for _, want := range []int{3, 2, 1} {
		got, err := s.Pop()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if !s.Empty() {
		t.Fatalf("expected stack to be empty after popping everything pushed")
	}
}
