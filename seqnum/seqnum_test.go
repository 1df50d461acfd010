package seqnum

import "testing"

func TestAddWraps(t *testing.T) {
	const w = Width(2)
	max := w.Max()
	if max != 65535 {
		t.Fatalf("max = %d, want 65535", max)
	}
	if got := max.Next(w); got != 1 {
		t.Fatalf("max.Next() = %d, want 1", got)
	}
	if got := Number(5).Add(0, w); got != 5 {
		t.Fatalf("s+0 = %d, want 5", got)
	}
	if got := Number(5).Add(int64(max), w); got != 5 {
		t.Fatalf("s+Max = %d, want 5", got)
	}
}

func TestNewerThan(t *testing.T) {
	const w = Width(2)
	cases := []struct {
		a, b  Number
		newer bool
	}{
		{2, 1, true},
		{1, 2, false},
		{1, 65535, true},
		{65535, 1, false},
		{100, 100, false},
	}
	for _, c := range cases {
		if got := c.a.NewerThan(c.b, w); got != c.newer {
			t.Errorf("%d.NewerThan(%d) = %v, want %v", c.a, c.b, got, c.newer)
		}
	}
}

func TestWidthOne(t *testing.T) {
	const w = Width(1)
	if w.Max() != 255 {
		t.Fatalf("max = %d, want 255", w.Max())
	}
}
