package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	token, err := GenerateJWT("s3cret", "user-42", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	sub, err := ValidateJWT("s3cret", token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if sub != "user-42" {
		t.Errorf("subject = %q, want user-42", sub)
	}
}

func TestValidateRejects(t *testing.T) {
	good, _ := GenerateJWT("s3cret", "user-42", time.Hour)
	expired, _ := GenerateJWT("s3cret", "user-42", -time.Minute)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", good},
		{"expired", "s3cret", expired},
		{"garbage", "s3cret", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateJWT(tt.secret, tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNoSecret(t *testing.T) {
	if _, err := GenerateJWT("", "u", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
	if _, err := ValidateJWT("", "x"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}
