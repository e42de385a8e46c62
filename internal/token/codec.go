// Package token implements the stateless verification token handed out at
// registration.  A token is base64(AES-CBC(email + "-" + accountID)) under
// a key and IV supplied by configuration; nothing but the account row
// itself is stored server side.
package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidToken covers every decode failure: bad base64, bad padding,
// wrong key, or a plaintext that is not email-dash-uuid.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	separator = "-"
	idLen     = 36 // canonical uuid text form
)

// Config is the key material.  Key must be 16, 24 or 32 bytes (AES-128,
// AES-192, AES-256); IV must be exactly one AES block.
type Config struct {
	Key []byte
	IV  []byte
}

// Claims is what a token carries.
type Claims struct {
	Email     string
	AccountID string
}

// Codec encodes and decodes verification tokens.  It is safe for
// concurrent use.
type Codec struct {
	block cipher.Block
	iv    []byte
}

// NewCodec validates cfg and prepares the cipher.
func NewCodec(cfg Config) (*Codec, error) {
	block, err := aes.NewCipher(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if len(cfg.IV) != aes.BlockSize {
		return nil, fmt.Errorf("token: iv must be %d bytes, got %d", aes.BlockSize, len(cfg.IV))
	}
	iv := make([]byte, aes.BlockSize)
	copy(iv, cfg.IV)
	return &Codec{block: block, iv: iv}, nil
}

// Encode returns the token for (email, accountID).
func (c *Codec) Encode(email, accountID string) (string, error) {
	if _, err := uuid.Parse(accountID); err != nil || len(accountID) != idLen {
		return "", fmt.Errorf("token: account id must be a canonical uuid: %q", accountID)
	}
	plain := pkcs7Pad([]byte(email+separator+accountID), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decode reverses Encode.  The account id is read as the fixed-width uuid
// suffix, so emails that themselves contain "-" decode correctly.
func (c *Codec) Decode(tok string) (Claims, error) {
	plain, err := c.open(tok)
	if err != nil {
		return Claims{}, err
	}
	if len(plain) < idLen+len(separator)+1 {
		return Claims{}, ErrInvalidToken
	}
	cut := len(plain) - idLen
	if plain[cut-len(separator):cut] != separator {
		return Claims{}, ErrInvalidToken
	}
	return parseClaims(plain[:cut-len(separator)], plain[cut:])
}

// DecodeFirstDash splits the plaintext on the first "-", which is how the
// token format was originally read.  It misreads any email containing "-"
// and is kept only so that defect stays pinned down by tests.
func (c *Codec) DecodeFirstDash(tok string) (Claims, error) {
	plain, err := c.open(tok)
	if err != nil {
		return Claims{}, err
	}
	email, id, ok := strings.Cut(plain, separator)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	return parseClaims(email, id)
}

func (c *Codec) open(tok string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(tok))
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", ErrInvalidToken
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}

func parseClaims(email, id string) (Claims, error) {
	if email == "" {
		return Claims{}, ErrInvalidToken
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Email: email, AccountID: parsed.String()}, nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrInvalidToken
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidToken
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrInvalidToken
		}
	}
	return b[:len(b)-n], nil
}
