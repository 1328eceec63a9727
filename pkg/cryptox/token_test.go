package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantLen int
	}{
		{"128-bit token", TokenSize128, 22},
		{"256-bit token", TokenSize256, 43},
		{"512-bit token", TokenSize512, 86},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.Len(t, token, tt.wantLen)

			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)

		hexToken, err := GenerateHexToken(size)
		require.Error(t, err)
		require.Empty(t, hexToken)
	}
}

func TestGenerateHexToken(t *testing.T) {
	token, err := GenerateHexToken(TokenSize160)
	require.NoError(t, err)
	require.Len(t, token, 40)
	require.Equal(t, strings.ToLower(token), token)
	for _, c := range token {
		require.True(t, strings.ContainsRune("0123456789abcdef", c))
	}
}

func TestRandomNumericCode(t *testing.T) {
	t.Run("digits only and exact length", func(t *testing.T) {
		for range 200 {
			code, err := RandomNumericCode(6, false)
			require.NoError(t, err)
			require.Len(t, code, 6)
			for _, c := range code {
				require.True(t, c >= '0' && c <= '9', "unexpected character %q", c)
			}
		}
	})

	t.Run("leading zero excluded", func(t *testing.T) {
		for range 500 {
			code, err := RandomNumericCode(6, true)
			require.NoError(t, err)
			require.NotEqual(t, byte('0'), code[0])
		}
	})

	t.Run("leading zero reachable when allowed", func(t *testing.T) {
		sawZero := false
		for range 2000 {
			code, err := RandomNumericCode(1, false)
			require.NoError(t, err)
			if code == "0" {
				sawZero = true
				break
			}
		}
		require.True(t, sawZero)
	})

	t.Run("invalid length", func(t *testing.T) {
		_, err := RandomNumericCode(0, true)
		require.Error(t, err)
	})
}

func TestFingerprintToken(t *testing.T) {
	fp1a := FingerprintToken("test-token-1")
	fp1b := FingerprintToken("test-token-1")
	fp2 := FingerprintToken("test-token-2")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2, "different tokens should have different fingerprints")
	require.Len(t, fp1a, 43, "SHA-256 base64url should be 43 chars")

	require.True(t, EqualFingerprint("test-token-1", fp1a))
	require.False(t, EqualFingerprint("test-token-2", fp1a))
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual("000123", "000123"))
	require.False(t, ConstantTimeEqual("000123", "000124"))
	require.False(t, ConstantTimeEqual("000123", "00012"))
}
