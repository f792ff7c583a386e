package security

import (
	"strings"
	"testing"
)

func TestHashPassword_Roundtrip(t *testing.T) {
	const password = "Segura!Frase-03"

	encoded, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "argon2id$v=19$") {
		t.Fatalf("unexpected encoding prefix: %s", encoded)
	}

	match, err := VerifyPassword(password, encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if !match {
		t.Fatalf("the original password must verify")
	}

	match, err = VerifyPassword("Segura!Frase-04", encoded)
	if err != nil {
		t.Fatalf("VerifyPassword returned error: %v", err)
	}
	if match {
		t.Fatalf("a different password must not verify")
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	first, err := HashPassword("Segura!Frase-03")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	second, err := HashPassword("Segura!Frase-03")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if first == second {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestVerifyPassword_EmptyInputs(t *testing.T) {
	encoded, err := HashPassword("Segura!Frase-03")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	if match, err := VerifyPassword("", encoded); err != nil || match {
		t.Fatalf("an empty password must quietly fail, got match=%v err=%v", match, err)
	}
	if match, err := VerifyPassword("anything", ""); err != nil || match {
		t.Fatalf("an empty hash must quietly fail, got match=%v err=%v", match, err)
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	cases := []string{
		"not-an-encoded-hash",
		"argon2id$v=19$m=65536,t=3,p=4$only-four-parts",
		"bcrypt$v=19$m=65536,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"argon2id$v=18$m=65536,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
		"argon2id$v=19$m=abc,t=3,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA",
	}

	for _, encoded := range cases {
		if _, err := VerifyPassword("anything", encoded); err == nil {
			t.Errorf("expected an error for %q", encoded)
		}
	}
}

func TestConfigureArgon2_RejectsWeakParameters(t *testing.T) {
	cases := []Argon2Config{
		{Memory: 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 0, Parallelism: 4, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 3, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 4, KeyLength: 32},
		{Memory: 64 * 1024, Iterations: 3, Parallelism: 4, SaltLength: 16, KeyLength: 8},
	}

	for i, cfg := range cases {
		if err := ConfigureArgon2(cfg); err == nil {
			t.Errorf("case %d: expected a rejection", i)
		}
	}

	// The active configuration is untouched by rejected updates.
	if got := CurrentArgon2Config(); got != DefaultArgon2Config() {
		t.Fatalf("active configuration changed: %+v", got)
	}
}

func TestDecoyHash_Verifiable(t *testing.T) {
	match, err := VerifyPassword("any-guess", DecoyHash)
	if err != nil {
		t.Fatalf("the decoy hash must be well formed: %v", err)
	}
	if match {
		t.Fatalf("no password may verify against the decoy")
	}
}
