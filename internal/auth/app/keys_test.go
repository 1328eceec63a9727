package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
	"github.com/aussiebroadwan/shield/pkg/slogx"
)

func TestLoadKeySets_Ephemeral(t *testing.T) {
	sets, err := LoadKeySets(Config{Algorithm: jwtx.AlgorithmES256}, slogx.Discard())
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Equal(t, authn.DefaultJWTKeyset, sets[0].Name())

	signer, err := sets[0].Signer()
	require.NoError(t, err)
	require.Equal(t, jwtx.AlgorithmES256, signer.Alg)
}

func TestLoadKeySets_File(t *testing.T) {
	dir := t.TempDir()

	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "current.pem")
	require.NoError(t, os.WriteFile(keyPath, pemKey, 0o600))

	keysPath := filepath.Join(dir, "keys.toml")
	require.NoError(t, os.WriteFile(keysPath, []byte(`
[[keysets.default.keys]]
kid = "2026-03"
alg = "EdDSA"
private_key_file = "`+keyPath+`"

[[keysets.internal.keys]]
kid = "svc"
alg = "HS256"
secret = "0123456789abcdef0123456789abcdef"
`), 0o600))

	sets, err := LoadKeySets(Config{KeysFile: keysPath}, slogx.Discard())
	require.NoError(t, err)
	require.Len(t, sets, 2)

	codec, err := jwtx.NewCodec(jwtx.Options{Issuer: "shield"}, sets...)
	require.NoError(t, err)

	jwks, err := codec.JWKS("default")
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "2026-03", jwks.Keys[0].Kid)

	internal, err := codec.JWKS("internal")
	require.NoError(t, err)
	require.Empty(t, internal.Keys)

	t.Run("short hmac secret", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(bad, []byte(`
[[keysets.default.keys]]
kid = "k"
alg = "HS256"
secret = "short"
`), 0o600))
		_, err := LoadKeySets(Config{KeysFile: bad}, slogx.Discard())
		require.Error(t, err)
	})

	t.Run("missing key file", func(t *testing.T) {
		bad := filepath.Join(dir, "missing.toml")
		require.NoError(t, os.WriteFile(bad, []byte(`
[[keysets.default.keys]]
kid = "k"
alg = "EdDSA"
private_key_file = "/nonexistent/key.pem"
`), 0o600))
		_, err := LoadKeySets(Config{KeysFile: bad}, slogx.Discard())
		require.Error(t, err)
	})
}
