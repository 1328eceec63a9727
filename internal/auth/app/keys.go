package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/aussiebroadwan/shield/internal/auth/authn"
	"github.com/aussiebroadwan/shield/pkg/jwtx"
)

// keyEntry is one key in the keys file. PEM material can be inline or read
// from a file.
type keyEntry struct {
	jwtx.KeyConfig
	PrivateKeyFile string `toml:"private_key_file"`
	PublicKeyFile  string `toml:"public_key_file"`
}

// keysFile is the layout of SHIELD_KEYS_FILE:
//
//	[[keysets.default.keys]]
//	kid = "2026-01"
//	alg = "EdDSA"
//	private_key_file = "/etc/shield/2026-01.pem"
//
// The first key of a keyset signs; the rest only verify.
type keysFile struct {
	Keysets map[string]struct {
		Keys []keyEntry `toml:"keys"`
	} `toml:"keysets"`
}

// LoadKeySets reads the keys file. Without one, a single ephemeral key is
// generated for the default keyset.
func LoadKeySets(cfg Config, logger *slog.Logger) ([]*jwtx.KeySet, error) {
	if cfg.KeysFile == "" {
		key, err := jwtx.GenerateKey(jwtx.NewKID(), cfg.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		ks, err := jwtx.NewKeySet(authn.DefaultJWTKeyset, key)
		if err != nil {
			return nil, err
		}
		logger.Info("generated ephemeral signing key", "algorithm", key.Alg, "kid", key.Kid)
		logger.Warn("issued JWTs will not survive a restart; set SHIELD_KEYS_FILE to persist keys")
		return []*jwtx.KeySet{ks}, nil
	}

	var file keysFile
	if _, err := toml.DecodeFile(cfg.KeysFile, &file); err != nil {
		return nil, fmt.Errorf("failed to decode keys file: %w", err)
	}
	if len(file.Keysets) == 0 {
		return nil, fmt.Errorf("keys file %s defines no keysets", cfg.KeysFile)
	}

	sets := make([]*jwtx.KeySet, 0, len(file.Keysets))
	for name, def := range file.Keysets {
		keys := make([]*jwtx.Key, 0, len(def.Keys))
		for _, entry := range def.Keys {
			kc, err := entry.resolve()
			if err != nil {
				return nil, fmt.Errorf("keyset %q: %w", name, err)
			}
			key, err := jwtx.NewKey(kc)
			if err != nil {
				return nil, fmt.Errorf("keyset %q: %w", name, err)
			}
			keys = append(keys, key)
		}
		ks, err := jwtx.NewKeySet(name, keys...)
		if err != nil {
			return nil, fmt.Errorf("keyset %q: %w", name, err)
		}
		logger.Info("loaded keyset", "keyset", name, "keys", len(keys))
		sets = append(sets, ks)
	}
	return sets, nil
}

func (e keyEntry) resolve() (jwtx.KeyConfig, error) {
	kc := e.KeyConfig
	if e.PrivateKeyFile != "" {
		data, err := os.ReadFile(e.PrivateKeyFile)
		if err != nil {
			return kc, fmt.Errorf("read private key for kid %q: %w", kc.Kid, err)
		}
		kc.PrivateKeyPEM = string(data)
	}
	if e.PublicKeyFile != "" {
		data, err := os.ReadFile(e.PublicKeyFile)
		if err != nil {
			return kc, fmt.Errorf("read public key for kid %q: %w", kc.Kid, err)
		}
		kc.PublicKeyPEM = string(data)
	}
	return kc, nil
}
