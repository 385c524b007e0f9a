// File: internal/infra/security/cipher_test.go
package security

import "testing"

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	for _, plain := range []string{"", "pw", "a much longer credential with spaces and symbols !@#"} {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if enc == plain && plain != "" {
			t.Fatalf("ciphertext equals plaintext for %q", plain)
		}
		dec, err := c.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if dec != plain {
			t.Fatalf("round trip = %q, want %q", dec, plain)
		}
	}
}

func TestCipherNonceVaries(t *testing.T) {
	c, _ := NewCipher("0123456789abcdef")
	a, _ := c.Encrypt("same input")
	b, _ := c.Encrypt("same input")
	if a == b {
		t.Fatal("two encryptions of the same value must differ")
	}
}

func TestCipherRejectsTampering(t *testing.T) {
	c, _ := NewCipher("0123456789abcdef")
	enc, _ := c.Encrypt("secret")
	flip := byte('A')
	if enc[10] == flip {
		flip = 'B'
	}
	tampered := enc[:10] + string(flip) + enc[11:]
	if _, err := c.Decrypt(tampered); err == nil {
		t.Fatal("tampered ciphertext must not decrypt")
	}
}

func TestCipherKeyLength(t *testing.T) {
	if _, err := NewCipher("short"); err == nil {
		t.Fatal("bad key length must fail")
	}
}
