package wireframe

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestCipherXORIsInvolution(t *testing.T) {
	key := []byte("secret-key")
	rng := rand.New(rand.NewSource(1))

	for n := 0; n < 50; n++ {
		size := rng.Intn(257)
		orig := make([]byte, size)
		rng.Read(orig)

		buf := append([]byte(nil), orig...)
		c := NewCipher(key)
		c.XOR(buf, 0)
		c.XOR(buf, 0)

		if !bytes.Equal(buf, orig) {
			t.Fatalf("xor(xor(b)) != b for size %d", size)
		}
	}
}

func TestCipherNoKeyIsIdentity(t *testing.T) {
	c := NewCipher(nil)
	if c.HasKey() {
		t.Fatal("empty cipher reports HasKey")
	}
	b := []byte("plaintext request body")
	orig := append([]byte(nil), b...)
	c.XOR(b, 0)
	if !bytes.Equal(b, orig) {
		t.Fatal("cipher with no key modified the buffer")
	}
}

func TestCipherSetKeyThenHasKey(t *testing.T) {
	var c Cipher
	if c.HasKey() {
		t.Fatal("zero-value cipher should have no key")
	}
	c.SetKey([]byte("k"))
	if !c.HasKey() {
		t.Fatal("cipher should report a key after SetKey")
	}
}

func TestCipherOffsetWraps(t *testing.T) {
	key := []byte{0xAA, 0xBB, 0xCC}
	c := NewCipher(key)
	b := []byte{0, 0, 0, 0, 0, 0, 0}
	c.XOR(b, 0)
	want := []byte{0xAA, 0xBB, 0xCC, 0xAA, 0xBB, 0xCC, 0xAA}
	if !bytes.Equal(b, want) {
		t.Fatalf("xor with wrapping key = %x, want %x", b, want)
	}
}
