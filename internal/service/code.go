package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/darry-Jnr/codemap-server-go/internal/config"
	apperrors "github.com/darry-Jnr/codemap-server-go/internal/errors"
)

// Ambiguity-free alphabet: no O/I/0/1, since codes are read aloud and typed.
const shareCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxCodeAttempts = 10

func generateShareCode() string {
	chars := []byte(shareCodeChars)
	code := make([]byte, config.CodeLength)

	for i := 0; i < config.CodeLength; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[n.Int64()]
	}

	return string(code)
}

// normalizeCode validates and canonicalizes user input before any store
// lookup: exactly 8 alphanumeric characters, case-insensitive.
func normalizeCode(code string) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(code))
	if len(cleaned) != config.CodeLength {
		return "", apperrors.ValidationError("Code must be 8 characters")
	}
	for _, c := range cleaned {
		isDigit := c >= '0' && c <= '9'
		isLetter := c >= 'A' && c <= 'Z'
		if !isDigit && !isLetter {
			return "", apperrors.ValidationError("Code must be letters and digits only")
		}
	}
	return cleaned, nil
}

// freshCode retries generation until the code does not collide with a live
// session. Codes only need to be unique among currently live sessions; at
// realistic session counts exhausting the attempts means the lookups are
// broken, not the keyspace.
func (s *SessionService) freshCode(ctx context.Context) (string, error) {
	for attempts := 0; attempts < maxCodeAttempts; attempts++ {
		code := generateShareCode()
		solo, err := s.sessions.FindSoloByCode(ctx, code)
		if err != nil {
			return "", err
		}
		group, err := s.sessions.FindGroupByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if solo == nil && group == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("no collision-free share code after %d attempts", maxCodeAttempts)
}
