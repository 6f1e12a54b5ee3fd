package model

import "testing"

func TestSourceFilePosition(t *testing.T) {
	f := NewSourceFile("x.go", []byte("ab\ncd\n"))

	line, col := f.Position(0)
	if line != 1 || col != 1 {
		t.Fatalf("got (%d,%d), want (1,1)", line, col)
	}

	line, col = f.Position(3)
	if line != 2 || col != 1 {
		t.Fatalf("got (%d,%d), want (2,1)", line, col)
	}

	off, err := f.Offset(2, 1)
	if err != nil || off != 3 {
		t.Fatalf("Offset(2,1) = (%d, %v), want (3, nil)", off, err)
	}
}

func TestSpanKeyStable(t *testing.T) {
	f := NewSourceFile("x.go", []byte("a := 1\nb := 2\n"))
	s := NewSpan(f, 0, 6)

	if got, want := s.Key(), "x.go:1:1-1:7"; got != want {
		t.Fatalf("Key() = %q, want %q", got, want)
	}

	if s.Text() != "a := 1" {
		t.Fatalf("Text() = %q", s.Text())
	}
}

func TestSpanEqual(t *testing.T) {
	f := NewSourceFile("x.go", []byte("abcdef"))
	s1 := NewSpan(f, 1, 3)
	s2 := NewSpan(f, 1, 3)
	s3 := NewSpan(f, 1, 4)

	if !s1.Equal(s2) {
		t.Fatalf("expected equal spans")
	}

	if s1.Equal(s3) {
		t.Fatalf("expected unequal spans")
	}
}

func TestNewSpanPanicsOnOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range span")
		}
	}()

	f := NewSourceFile("x.go", []byte("abc"))
	NewSpan(f, 0, 10)
}
