package cryptox

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer([]byte("master-key-material"))
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("hmac-secret"))
	require.NoError(t, err)
	require.NotContains(t, sealed, "hmac-secret")

	again, err := s.Seal([]byte("hmac-secret"))
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce should differ per seal")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "hmac-secret", string(plain))
}

func TestSealer_WrongKeyAndTamper(t *testing.T) {
	a, err := NewSealer([]byte("key-a"))
	require.NoError(t, err)
	b, err := NewSealer([]byte("key-b"))
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = b.Open(sealed)
	require.Error(t, err)

	_, err = a.Open("AAAA")
	require.ErrorIs(t, err, ErrSealedTooShort)

	_, err = a.Open("not base64 !!")
	require.Error(t, err)
}

func TestNewSealer_EmptyKey(t *testing.T) {
	_, err := NewSealer(nil)
	require.Error(t, err)
}

func TestLoadMasterKey(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte("from-file"), 0600))

		key, ephemeral, err := LoadMasterKey(path, "AUTH_TEST_MASTER_KEY")
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, "from-file", string(key))
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("AUTH_TEST_MASTER_KEY", "from-env")
		key, ephemeral, err := LoadMasterKey("", "AUTH_TEST_MASTER_KEY")
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, "from-env", string(key))
	})

	t.Run("ephemeral", func(t *testing.T) {
		t.Setenv("AUTH_TEST_MASTER_KEY", "")
		key, ephemeral, err := LoadMasterKey("", "AUTH_TEST_MASTER_KEY")
		require.NoError(t, err)
		require.True(t, ephemeral)
		require.Len(t, key, 32)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadMasterKey(filepath.Join(t.TempDir(), "nope"), "AUTH_TEST_MASTER_KEY")
		require.Error(t, err)
	})
}

func TestGenerateKeys(t *testing.T) {
	t.Run("ed25519", func(t *testing.T) {
		pemBytes, err := GenerateEd25519Key()
		require.NoError(t, err)
		block, _ := pem.Decode(pemBytes)
		require.NotNil(t, block)
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		require.NoError(t, err)
		require.IsType(t, ed25519.PrivateKey{}, key)
	})

	t.Run("es256", func(t *testing.T) {
		pemBytes, err := GenerateES256Key()
		require.NoError(t, err)
		require.Contains(t, string(pemBytes), "PRIVATE KEY")
	})

	t.Run("rsa too small", func(t *testing.T) {
		_, err := GenerateRSAKey(1024)
		require.Error(t, err)
	})
}
