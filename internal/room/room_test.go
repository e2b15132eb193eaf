package room

import (
	"strings"
	"testing"
)

func TestNewCode_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := NewCode()
		if len(code) != 6 {
			t.Fatalf("expected 6-char code, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside A-Z0-9", code, r)
			}
		}
	}
}

func TestNewPassword_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		pw := NewPassword()
		if len(pw) != 4 {
			t.Fatalf("expected 4-digit password, got %q", pw)
		}
		for _, r := range pw {
			if r < '0' || r > '9' {
				t.Fatalf("password %q contains non-digit %q", pw, r)
			}
		}
	}
}

// With 36^6 possible codes, 1000 draws should almost never collide.
func TestNewCode_CollisionRate(t *testing.T) {
	const n = 1000
	seen := make(map[string]bool, n)
	collisions := 0
	for i := 0; i < n; i++ {
		code := NewCode()
		if seen[code] {
			collisions++
		}
		seen[code] = true
	}
	if collisions > n/20 {
		t.Errorf("collision rate too high: %d of %d", collisions, n)
	}
}

func TestNewCode_Distribution(t *testing.T) {
	// Every alphabet position should show up across a large sample.
	counts := make(map[byte]int)
	for i := 0; i < 2000; i++ {
		for j := 0; j < 6; j++ {
			counts[NewCode()[j]]++
		}
	}
	for i := 0; i < len(codeAlphabet); i++ {
		if counts[codeAlphabet[i]] == 0 {
			t.Errorf("character %q never generated", codeAlphabet[i])
		}
	}
}
