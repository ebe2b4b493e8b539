package swap

import (
	"strings"
	"testing"
)

func TestHashAlgorithm_KnownVectors(t *testing.T) {
	tests := []struct {
		alg    HashAlgorithm
		secret string
		want   string
	}{
		{HashSHA3, "", "0xa7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
		{HashSHA3, "abc", "0x3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
		{HashKeccak, "", "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
		{HashSHA256, "", "0xe3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}

	for _, tt := range tests {
		if got := tt.alg.Sum(tt.secret); got != tt.want {
			t.Errorf("%s(%q) = %s, want %s", tt.alg, tt.secret, got, tt.want)
		}
	}
}

func TestSecretBytes_HexAndText(t *testing.T) {
	if got := SecretBytes("0x616263"); string(got) != "abc" {
		t.Errorf("hex secret decoded to %q, want abc", got)
	}
	// Odd-length hex is not decodable, so it is hashed as text.
	if got := SecretBytes("0x123"); string(got) != "0x123" {
		t.Errorf("invalid hex secret = %q, want raw text", got)
	}
	if got := SecretBytes("plain"); string(got) != "plain" {
		t.Errorf("text secret = %q", got)
	}

	if HashSHA3.Sum("0x616263") != HashSHA3.Sum("abc") {
		t.Error("0x-prefixed secret should hash its decoded bytes")
	}
}

func TestVerify(t *testing.T) {
	h := HashSHA3.Sum("s3cret")

	if !HashSHA3.Verify("s3cret", h) {
		t.Error("matching secret rejected")
	}
	if !HashSHA3.Verify("s3cret", strings.ToUpper(strings.TrimPrefix(h, "0x"))) {
		t.Error("hash comparison should ignore case and prefix")
	}
	if HashSHA3.Verify("other", h) {
		t.Error("wrong secret accepted")
	}
	if HashKeccak.Verify("s3cret", h) {
		t.Error("secret accepted under a different algorithm")
	}
	if HashSHA3.Verify("s3cret", "0x1234") {
		t.Error("malformed hash accepted")
	}
}

func TestNormalizeSecretHash(t *testing.T) {
	valid := strings.Repeat("Ab", 32)
	got, err := NormalizeSecretHash("0x" + valid)
	if err != nil {
		t.Fatalf("NormalizeSecretHash failed: %v", err)
	}
	if got != "0x"+strings.Repeat("ab", 32) {
		t.Errorf("got %s", got)
	}

	for _, bad := range []string{"", "0x", "0x1234", "0x" + strings.Repeat("zz", 32), strings.Repeat("ab", 33)} {
		if _, err := NormalizeSecretHash(bad); err == nil {
			t.Errorf("NormalizeSecretHash(%q) should fail", bad)
		}
	}
}

func TestParseHashAlgorithm(t *testing.T) {
	for in, want := range map[string]HashAlgorithm{
		"":          HashSHA3,
		"sha3-256":  HashSHA3,
		"KECCAK256": HashKeccak,
		"sha256":    HashSHA256,
	} {
		got, err := ParseHashAlgorithm(in)
		if err != nil {
			t.Fatalf("ParseHashAlgorithm(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseHashAlgorithm(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseHashAlgorithm("md5"); err == nil {
		t.Error("expected error for md5")
	}
}
