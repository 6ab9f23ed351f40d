package checksum

import "testing"

func TestSumIsStable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Errorf("same input produced different sums: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("sum length = %d, want 64 hex chars", len(a))
	}
	if Sum([]byte("other")) == a {
		t.Error("different input produced the same sum")
	}
}

func TestShort(t *testing.T) {
	full := Sum([]byte("hello"))
	short := Short([]byte("hello"))
	if len(short) != 12 {
		t.Errorf("short length = %d", len(short))
	}
	if full[:12] != short {
		t.Errorf("short %s is not a prefix of %s", short, full)
	}
}
