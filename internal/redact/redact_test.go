package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcdefgh1234", "****1234"},
		{"12345", "****2345"},
		{"1234", "****"},
		{"ab", "****"},
		{"", "****"},
		{"sécrétkéy✓", "****kéy✓"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskToken(tt.in))
		})
	}
}

func TestAuthorization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bearer", "Bearer abcdefgh1234", "Bearer ****1234"},
		{"basic", "Basic dXNlcjpwYXNzd29yZA==", "Basic ****ZA=="},
		{"no scheme", "abcdefgh1234", "****1234"},
		{"credential with spaces", "Custom a b c d e f", "Custom **** e f"},
		{"short credential", "Bearer ab", "Bearer ****"},
		{"leading space", " abcdefgh1234", "****1234"},
		{"empty", "", "****"},
		{"scheme only", "Bearer ", "Bearer ****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorization(tt.in))
		})
	}
}

func TestHeader(t *testing.T) {
	assert.Equal(t, "Bearer ****1234", Header("authorization", "Bearer abcdefgh1234"))
	assert.Equal(t, "Bearer ****1234", Header("Authorization", "Bearer abcdefgh1234"))
	assert.Equal(t, "****9876", Header("X-User-Auth", "user-token-9876"))
	assert.Equal(t, "****9876", Header("x-user-auth", "Bearer 9876-9876"), "x-user-auth masks the whole value")
	assert.Equal(t, "application/json", Header("Content-Type", "application/json"))
	assert.Equal(t, "", Header("X-Empty", ""))
}

// The console never shows more than the last four characters of a secret.
func TestHeader_NeverLeaksMoreThanSuffix(t *testing.T) {
	secret := "s3cr3t-t0k3n-abcdefghijklmnopqrstuvwxyz"
	for n := 0; n <= len(secret); n++ {
		token := secret[:n]
		for _, name := range []string{"Authorization", "X-User-Auth"} {
			for _, value := range []string{token, "Bearer " + token} {
				shown := Header(name, value)
				visible := strings.TrimPrefix(strings.TrimPrefix(shown, "Bearer "), mask)
				assert.LessOrEqual(t, len([]rune(visible)), 4, "%s: %q rendered as %q", name, value, shown)
				if n > 4 {
					assert.NotContains(t, shown, token)
				}
			}
		}
	}
}

func TestSensitive(t *testing.T) {
	assert.True(t, Sensitive("AUTHORIZATION"))
	assert.True(t, Sensitive("X-User-Auth"))
	assert.False(t, Sensitive("X-User-Id"))
}

func TestImportant(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Authorization", true},
		{"content-type", true},
		{"X-User-Id", true},
		{"X-Channel-Id", true},
		{"X-App-Id", true},
		{"X-Api-Key", true},
		{"Accept", false},
		{"X-Request-Id", false},
		{"Content-Length", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Important(tt.name))
		})
	}
}
