package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password: empty password")
	// ErrInvalidHash is returned when a stored hash is not a supported PHC string.
	ErrInvalidHash = errors.New("password: invalid encoded hash")
	// ErrInvalidConfig is returned by NewHasher for parameters below the safe minimums.
	ErrInvalidConfig = errors.New("password: invalid config")
)

// Config holds Argon2id cost parameters and the server-side pepper.
type Config struct {
	Memory      uint32 `yaml:"memory_kb" env:"PASSWORD_ARGON2_MEMORY_KB" env-default:"65536"`
	Time        uint32 `yaml:"time" env:"PASSWORD_ARGON2_TIME" env-default:"3"`
	Parallelism uint8  `yaml:"parallelism" env:"PASSWORD_ARGON2_PARALLELISM" env-default:"2"`
	SaltLength  uint32 `yaml:"salt_length" env:"PASSWORD_ARGON2_SALT_LENGTH" env-default:"16"`
	KeyLength   uint32 `yaml:"key_length" env:"PASSWORD_ARGON2_KEY_LENGTH" env-default:"32"`
	// Pepper is appended to every password before it reaches Argon2. It is never
	// stored next to the hash.
	Pepper string `yaml:"pepper" env:"PASSWORD_PEPPER_SECRET"`
}

// DefaultConfig returns production cost parameters without a pepper.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies peppered passwords. It is safe for concurrent use.
type Hasher struct {
	config Config
	pepper []byte
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg, pepper: []byte(cfg.Pepper)}, nil
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory must be >= %d KiB", ErrInvalidConfig, minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("%w: time must be >= %d", ErrInvalidConfig, minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("%w: parallelism must be >= %d", ErrInvalidConfig, minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length must be >= %d", ErrInvalidConfig, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length must be >= %d", ErrInvalidConfig, minKeyLength)
	}
	return nil
}

// Hash returns the PHC encoding of the peppered password:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	key := argon2.IDKey(h.peppered(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return encode(phc{
		memory:      h.config.Memory,
		time:        h.config.Time,
		parallelism: h.config.Parallelism,
		salt:        salt,
		key:         key,
	}), nil
}

// Verify reports whether password matches encoded. A malformed hash is an
// error; a wrong password is (false, nil).
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	stored, err := decode(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey(h.peppered(password), stored.salt, stored.time, stored.memory, stored.parallelism, uint32(len(stored.key)))
	return subtle.ConstantTimeCompare(key, stored.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters than
// the current config, so the caller can rehash after a successful login.
func (h *Hasher) NeedsUpgrade(encoded string) (bool, error) {
	stored, err := decode(encoded)
	if err != nil {
		return false, err
	}

	weaker := h.config.Memory > stored.memory ||
		h.config.Time > stored.time ||
		h.config.Parallelism > stored.parallelism ||
		h.config.KeyLength != uint32(len(stored.key))
	return weaker, nil
}

func (h *Hasher) peppered(password string) []byte {
	buf := make([]byte, 0, len(password)+len(h.pepper))
	buf = append(buf, password...)
	return append(buf, h.pepper...)
}

func encode(p phc) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.time,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.key),
	)
}

func decode(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidHash, parts[2])
	}

	out := &phc{}
	if err := decodeParams(parts[3], out); err != nil {
		return nil, err
	}

	var err error
	if out.salt, err = decodeBase64(parts[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	if out.key, err = decodeBase64(parts[5]); err != nil || len(out.key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	return out, nil
}

func decodeParams(section string, out *phc) error {
	seen := 0
	for _, pair := range strings.Split(section, ",") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: parameter %q", ErrInvalidHash, pair)
		}

		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: parameter %q", ErrInvalidHash, pair)
		}

		switch name {
		case "m":
			if uint32(n) < minMemoryKB {
				return fmt.Errorf("%w: memory", ErrInvalidHash)
			}
			out.memory = uint32(n)
		case "t":
			if uint32(n) < minTimeCost {
				return fmt.Errorf("%w: time", ErrInvalidHash)
			}
			out.time = uint32(n)
		case "p":
			if n < uint64(minParallelism) || n > 255 {
				return fmt.Errorf("%w: parallelism", ErrInvalidHash)
			}
			out.parallelism = uint8(n)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
		seen++
	}
	if seen != 3 {
		return fmt.Errorf("%w: expected m,t,p", ErrInvalidHash)
	}
	return nil
}

// decodeBase64 accepts both padded and unpadded standard base64.
func decodeBase64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
