package security

import "testing"

func TestRandomToken(t *testing.T) {
	a, err := RandomToken(32)
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	if len(a) != 43 {
		t.Errorf("32 bytes should encode to 43 chars, got %d", len(a))
	}
	b, _ := RandomToken(32)
	if a == b {
		t.Error("two random tokens should differ")
	}
}

func TestStateEqual(t *testing.T) {
	if !StateEqual("abc", "abc") {
		t.Error("equal states should match")
	}
	if StateEqual("abc", "abd") {
		t.Error("different states should not match")
	}
	if StateEqual("", "") {
		t.Error("empty states should not match")
	}
}
