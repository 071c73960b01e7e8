package masking

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math/big"

	"github.com/syssam/dsr"
	"github.com/syssam/dsr/graph"
)

// Built-in strategy names.
const (
	NullRewrite         = "null_rewrite"
	StringRewrite       = "string_rewrite"
	RandomStringRewrite = "random_string_rewrite"
	Hash                = "hash"
	HMAC                = "hmac"
	AESEncrypt          = "aes_encrypt"
)

// Secret keys generated per request.
const (
	SecretSalt    = "salt"
	SecretKey     = "key"
	SecretKeyHMAC = "key_hmac"
)

// Hash algorithms.
const (
	SHA256 = "SHA-256"
	SHA512 = "SHA-512"
)

type builtin struct {
	factory Factory
	desc    Description
}

func builtins() []builtin {
	return []builtin{
		{
			factory: func(map[string]any) (Strategy, error) { return nullRewrite{}, nil },
			desc: Description{
				Name:        NullRewrite,
				Description: "Masks the input value with a null value",
			},
		},
		{
			factory: newStringRewrite,
			desc: Description{
				Name:        StringRewrite,
				Description: "Masks the input value with a default string value",
				Configurations: []ConfigurationDescribe{
					{Key: "rewrite_value", Description: "The string that will replace existing values"},
					{Key: "format_preservation", Description: "Optional suffix and separator preservation applied to the rewrite value"},
				},
			},
		},
		{
			factory: newRandomStringRewrite,
			desc: Description{
				Name:        RandomStringRewrite,
				Description: "Masks the input value with a random string of a specified length",
				Configurations: []ConfigurationDescribe{
					{Key: "length", Description: "Specifies the length of the random string (default 30)"},
					{Key: "format_preservation", Description: "Optional suffix and separator preservation applied to the random value"},
				},
			},
		},
		{
			factory: newHash,
			desc: Description{
				Name:        Hash,
				Description: "Masks the input value by hashing it with a per-request salt",
				Configurations: []ConfigurationDescribe{
					{Key: "algorithm", Description: "SHA-256 (default) or SHA-512"},
					{Key: "format_preservation", Description: "Optional suffix appended to the hash"},
				},
			},
		},
		{
			factory: newHMAC,
			desc: Description{
				Name:        HMAC,
				Description: "Masks the input value with a keyed hash using per-request key and salt",
				Configurations: []ConfigurationDescribe{
					{Key: "algorithm", Description: "SHA-256 (default) or SHA-512"},
					{Key: "format_preservation", Description: "Optional suffix appended to the hash"},
				},
			},
		},
		{
			factory: newAES,
			desc: Description{
				Name:        AESEncrypt,
				Description: "Masks the input value with deterministic AES-GCM encryption using per-request keys",
				Configurations: []ConfigurationDescribe{
					{Key: "mode", Description: "GCM (the only supported mode)"},
					{Key: "format_preservation", Description: "Optional suffix appended to the ciphertext"},
				},
			},
		},
	}
}

type nullRewrite struct{}

func (nullRewrite) Name() string                         { return NullRewrite }
func (nullRewrite) Mask(*dsr.Request, any) (any, error)  { return nil, nil }
func (nullRewrite) SupportsDataType(graph.DataType) bool { return true }
func (nullRewrite) SecretsRequired() bool                { return false }

// stringRewrite replaces values with a fixed string.
type stringRewrite struct {
	RewriteValue       string              `yaml:"rewrite_value"`
	FormatPreservation *FormatPreservation `yaml:"format_preservation"`
}

func newStringRewrite(conf map[string]any) (Strategy, error) {
	s := &stringRewrite{}
	if err := decode(conf, s); err != nil {
		return nil, err
	}
	if _, ok := conf["rewrite_value"]; !ok {
		return nil, errors.New("rewrite_value is required")
	}
	return s, nil
}

func (s *stringRewrite) Name() string { return StringRewrite }

func (s *stringRewrite) Mask(_ *dsr.Request, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return s.FormatPreservation.Format(fmt.Sprint(v), s.RewriteValue), nil
}

func (s *stringRewrite) SupportsDataType(t graph.DataType) bool { return t == graph.TypeString }
func (s *stringRewrite) SecretsRequired() bool                  { return false }

const randomAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type randomStringRewrite struct {
	Length             *int                `yaml:"length"`
	FormatPreservation *FormatPreservation `yaml:"format_preservation"`
}

func newRandomStringRewrite(conf map[string]any) (Strategy, error) {
	s := &randomStringRewrite{}
	if err := decode(conf, s); err != nil {
		return nil, err
	}
	if s.Length == nil {
		n := 30
		s.Length = &n
	}
	if *s.Length < 0 {
		return nil, fmt.Errorf("length must not be negative, got %d", *s.Length)
	}
	return s, nil
}

func (s *randomStringRewrite) Name() string { return RandomStringRewrite }

func (s *randomStringRewrite) Mask(_ *dsr.Request, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b := make([]byte, *s.Length)
	limit := big.NewInt(int64(len(randomAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, err
		}
		b[i] = randomAlphabet[n.Int64()]
	}
	return s.FormatPreservation.Format(fmt.Sprint(v), string(b)), nil
}

func (s *randomStringRewrite) SupportsDataType(t graph.DataType) bool { return t == graph.TypeString }
func (s *randomStringRewrite) SecretsRequired() bool                  { return false }

func hashFunc(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case "", SHA256:
		return sha256.New, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q, expected %s or %s", algorithm, SHA256, SHA512)
	}
}

// hashStrategy backs both hash and hmac: hmac keys the hash with a secret.
type hashStrategy struct {
	Algorithm          string              `yaml:"algorithm"`
	FormatPreservation *FormatPreservation `yaml:"format_preservation"`

	name  string
	keyed bool
	fn    func() hash.Hash
}

func newHash(conf map[string]any) (Strategy, error) { return newHashStrategy(Hash, false, conf) }
func newHMAC(conf map[string]any) (Strategy, error) { return newHashStrategy(HMAC, true, conf) }

func newHashStrategy(name string, keyed bool, conf map[string]any) (Strategy, error) {
	s := &hashStrategy{name: name, keyed: keyed}
	if err := decode(conf, s); err != nil {
		return nil, err
	}
	fn, err := hashFunc(s.Algorithm)
	if err != nil {
		return nil, err
	}
	s.fn = fn
	return s, nil
}

func (s *hashStrategy) Name() string { return s.name }

func (s *hashStrategy) Mask(req *dsr.Request, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	salt, err := secret(req, s.name, SecretSalt)
	if err != nil {
		return nil, err
	}
	var h hash.Hash
	if s.keyed {
		key, err := secret(req, s.name, SecretKey)
		if err != nil {
			return nil, err
		}
		h = hmac.New(s.fn, []byte(key))
	} else {
		h = s.fn()
	}
	original := fmt.Sprint(v)
	h.Write([]byte(original + salt))
	return s.FormatPreservation.Format(original, hex.EncodeToString(h.Sum(nil))), nil
}

func (s *hashStrategy) SupportsDataType(t graph.DataType) bool { return t == graph.TypeString }

func (s *hashStrategy) SecretsRequired() bool { return true }

func (s *hashStrategy) SecretKeys() []string {
	if s.keyed {
		return []string{SecretKey, SecretSalt}
	}
	return []string{SecretSalt}
}

// aesEncrypt encrypts values with AES-256-GCM. The nonce is derived from an
// HMAC of the value so that equal values encrypt to equal ciphertexts.
type aesEncrypt struct {
	Mode               string              `yaml:"mode"`
	FormatPreservation *FormatPreservation `yaml:"format_preservation"`
}

func newAES(conf map[string]any) (Strategy, error) {
	s := &aesEncrypt{}
	if err := decode(conf, s); err != nil {
		return nil, err
	}
	if s.Mode != "" && s.Mode != "GCM" {
		return nil, fmt.Errorf("unsupported mode %q, expected GCM", s.Mode)
	}
	return s, nil
}

func (s *aesEncrypt) Name() string { return AESEncrypt }

func (s *aesEncrypt) Mask(req *dsr.Request, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	key, err := secretBytes(req, AESEncrypt, SecretKey, 32)
	if err != nil {
		return nil, err
	}
	macKey, err := secret(req, AESEncrypt, SecretKeyHMAC)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	original := fmt.Sprint(v)
	mac := hmac.New(sha256.New, []byte(macKey))
	mac.Write([]byte(original))
	nonce := mac.Sum(nil)[:gcm.NonceSize()]
	out := gcm.Seal(nonce, nonce, []byte(original), nil)
	return s.FormatPreservation.Format(original, hex.EncodeToString(out)), nil
}

func (s *aesEncrypt) SupportsDataType(t graph.DataType) bool { return t == graph.TypeString }
func (s *aesEncrypt) SecretsRequired() bool                  { return true }
func (s *aesEncrypt) SecretKeys() []string                   { return []string{SecretKey, SecretKeyHMAC} }
