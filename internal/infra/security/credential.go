package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// CredentialScheme identifies how a stored password credential was produced.
// The platform migrated through three generations of hashing; every stored
// value is classified explicitly instead of being sniffed ad hoc at each
// call site.
type CredentialScheme string

const (
	// SchemeArgon2id is the current structured format produced by
	// HashPassword.
	SchemeArgon2id CredentialScheme = "argon2id"
	// SchemeLegacySHA256 is a bare hex-encoded SHA-256 digest of the
	// password, 64 characters, no salt. First-generation records.
	SchemeLegacySHA256 CredentialScheme = "legacy-sha256"
	// SchemeLegacySaltedSHA256 is "<hex digest>:<salt>" where the digest is
	// SHA-256 of password concatenated with salt. Second-generation records.
	SchemeLegacySaltedSHA256 CredentialScheme = "legacy-salted-sha256"
)

// ErrUnknownCredential reports a stored value matching no known scheme.
var ErrUnknownCredential = errors.New("security: unrecognized credential format")

// Credential is a classified stored password value.
type Credential struct {
	Scheme CredentialScheme
	// digest and salt are populated for the legacy schemes; encoded holds
	// the full structured value for argon2id.
	encoded string
	digest  string
	salt    string
}

// ParseCredential classifies a stored password value. Classification never
// touches the password itself, so it is safe to call on load paths.
func ParseCredential(stored string) (Credential, error) {
	switch {
	case strings.HasPrefix(stored, argon2Variant+"$"):
		return Credential{Scheme: SchemeArgon2id, encoded: stored}, nil
	case isHexDigest(stored):
		return Credential{Scheme: SchemeLegacySHA256, digest: stored}, nil
	default:
		digest, salt, ok := strings.Cut(stored, ":")
		if ok && salt != "" && isHexDigest(digest) {
			return Credential{Scheme: SchemeLegacySaltedSHA256, digest: digest, salt: salt}, nil
		}
	}
	return Credential{}, ErrUnknownCredential
}

// Verify reports whether the password matches the stored credential.
func (c Credential) Verify(password string) (bool, error) {
	switch c.Scheme {
	case SchemeArgon2id:
		return VerifyArgon2(password, c.encoded)
	case SchemeLegacySHA256:
		return legacyDigestMatches(password, c.digest), nil
	case SchemeLegacySaltedSHA256:
		return legacyDigestMatches(password+c.salt, c.digest), nil
	default:
		return false, ErrUnknownCredential
	}
}

// NeedsRehash reports whether a successful verification should trigger a
// transparent upgrade to the current scheme and parameters. Legacy schemes
// always do; argon2id does when its embedded cost parameters lag the active
// configuration.
func (c Credential) NeedsRehash() bool {
	if c.Scheme != SchemeArgon2id {
		return true
	}

	params, err := Argon2HashParams(c.encoded)
	if err != nil {
		return true
	}

	cfg := CurrentArgon2Config()
	return params.Memory != cfg.Memory ||
		params.Iterations != cfg.Iterations ||
		params.Parallelism != cfg.Parallelism
}

// VerifyPassword classifies the stored value and checks the password in one
// step. The second return reports whether the stored value should be
// re-hashed after a successful match.
func VerifyPassword(password, stored string) (ok bool, rehash bool, err error) {
	if password == "" || stored == "" {
		return false, false, nil
	}

	credential, err := ParseCredential(stored)
	if err != nil {
		return false, false, fmt.Errorf("classify credential: %w", err)
	}

	ok, err = credential.Verify(password)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, nil
	}

	return true, credential.NeedsRehash(), nil
}

func legacyDigestMatches(input, digest string) bool {
	sum := sha256.Sum256([]byte(input))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(digest))) == 1
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
