package buffer

import "testing"

func TestBufferReserveAndPatch(t *testing.T) {
	b := New(8)
	b.AppendByte('[')
	off := b.Reserve(4)
	b.Append([]byte("hello"))
	b.PatchAt(off, []byte{0, 0, 0, 5})

	got := b.Bytes()
	if got[0] != '[' {
		t.Fatalf("expected leading '[', got %q", got[0])
	}
	if string(got[5:]) != "hello" {
		t.Fatalf("expected payload 'hello', got %q", got[5:])
	}
	if got[1] != 0 || got[4] != 5 {
		t.Fatalf("patched length prefix wrong: %v", got[1:5])
	}
}

func TestBufferReset(t *testing.T) {
	b := New(4)
	b.Append([]byte("abc"))
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after Reset, got len=%d", b.Len())
	}
	b.Append([]byte("xyz"))
	if string(b.Bytes()) != "xyz" {
		t.Fatalf("expected 'xyz' after reuse, got %q", b.Bytes())
	}
}

func TestFixedTruncates(t *testing.T) {
	f := NewFixed(4)
	f.Set("hello world")
	if f.String() != "hell" {
		t.Fatalf("expected truncation to 'hell', got %q", f.String())
	}
	if f.Len() != 4 {
		t.Fatalf("expected len 4, got %d", f.Len())
	}
}

func TestFixedShorterThanCap(t *testing.T) {
	f := NewFixed(10)
	f.Set("hi")
	if f.String() != "hi" {
		t.Fatalf("expected 'hi', got %q", f.String())
	}
}
