// Package password hashes and verifies user passwords with Argon2id, keyed
// by a shared secret.
//
// The secret acts as a pepper: the password is first MACed with the secret
// (HMAC-SHA256), and the result is fed to Argon2id together with a fresh
// random per-hash salt. The salt makes equal passwords produce distinct
// digests; the secret ensures a stolen digest table cannot be attacked
// without also stealing the key from the environment.
package password

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/heimdallr/internal/common"
)

// Argon2id parameters. Memory is in KiB.
const (
	timeCost    = 1
	memoryCost  = 64 * 1024
	parallelism = 4
	saltLen     = 16
	keyLen      = 32
)

// Hash computes a salted, secret-keyed Argon2id digest of the password.
// The digest is returned in PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// with salt and key encoded as unpadded standard base64. Each call generates
// a fresh random salt, so hashing the same password twice yields different
// digests.
func Hash(password, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: empty secret", common.ErrHashingFailed)
	}

	salt := common.GenerateRandByteArray(saltLen)
	key := derive(password, secret, salt)

	digest := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memoryCost, timeCost, parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return digest, nil
}

// Verify recomputes the digest for the candidate password and compares it to
// the stored one in constant time. A malformed digest yields ok=false with a
// non-nil error describing the structural problem; callers should log the
// error internally and treat the outcome exactly like a wrong password.
func Verify(password, digest, secret string) (bool, error) {
	salt, storedKey, params, err := decode(digest)
	if err != nil {
		return false, err
	}

	pre := pepper(password, secret)
	defer common.WipeByteArray(pre)

	key := argon2.IDKey(pre, salt, params.time, params.memory, params.threads, uint32(len(storedKey)))

	return subtle.ConstantTimeCompare(key, storedKey) == 1, nil
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

// pepper folds the shared secret into the password before key derivation.
func pepper(password, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

func derive(password, secret string, salt []byte) []byte {
	pre := pepper(password, secret)
	defer common.WipeByteArray(pre)
	return argon2.IDKey(pre, salt, timeCost, memoryCost, parallelism, keyLen)
}

// decode parses a PHC-format argon2id digest produced by Hash.
func decode(digest string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, nil, params, fmt.Errorf("malformed digest: expected 6 fields, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("malformed version field: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("malformed parameter field: %w", err)
	}
	if params.time == 0 || params.threads == 0 {
		return nil, nil, params, fmt.Errorf("invalid argon2 cost parameters in digest")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("malformed salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("malformed key: %w", err)
	}
	// argon2 requires a non-empty salt and a tag of at least 4 bytes;
	// anything shorter cannot have come from Hash.
	if len(salt) == 0 || len(key) < 4 {
		return nil, nil, params, fmt.Errorf("empty or truncated salt/key in digest")
	}

	return salt, key, params, nil
}
