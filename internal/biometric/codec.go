package biometric

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/dsantanna/biolock/internal/common"
)

// envelopeSalt pins the argon2 derivation so a template secret and a token
// secret with the same bytes still produce unrelated keys.
var envelopeSalt = []byte("biolock/template-envelope/v1")

type envelope struct {
	Template      *Template    `json:"template"`
	AlgorithmTag  AlgorithmTag `json:"algorithm_tag"`
	FormatVersion string       `json:"format_version"`
	ExpiresAt     time.Time    `json:"expires_at"`
}

// Codec seals templates into the long-lived envelope persisted on the user
// row and opens them back up. Envelopes are AES-256-GCM sealed JSON with the
// key derived from a secret distinct from both token secrets, so rotating
// session secrets never invalidates stored templates and vice versa.
type Codec struct {
	aead     cipher.AEAD
	validity time.Duration

	now func() time.Time
}

// NewCodec derives the sealing key from secret and returns a Codec whose
// envelopes expire after validity.
func NewCodec(secret []byte, validity time.Duration) (*Codec, error) {
	key := argon2.IDKey(secret, envelopeSalt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead, validity: validity, now: time.Now}, nil
}

// Encode seals the template into an opaque envelope: nonce || ciphertext.
func (c *Codec) Encode(t *Template) ([]byte, error) {
	if t == nil || (t.Tag != TagHistogram && t.Tag != TagSIFT) {
		return nil, fmt.Errorf("%w: cannot encode tag %q", common.ErrorCorruptTemplate, tagOf(t))
	}

	plaintext, err := json.Marshal(envelope{
		Template:      t,
		AlgorithmTag:  t.Tag,
		FormatVersion: FormatVersion,
		ExpiresAt:     c.now().Add(c.validity),
	})
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(c.aead.NonceSize())

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decode opens an envelope and validates it. Tampered, expired, or
// unrecognized envelopes all report ErrorCorruptTemplate.
func (c *Codec) Decode(sealed []byte) (*Template, error) {
	if len(sealed) <= c.aead.NonceSize() {
		return nil, fmt.Errorf("%w: envelope too short", common.ErrorCorruptTemplate)
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", common.ErrorCorruptTemplate)
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", common.ErrorCorruptTemplate)
	}
	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %q", common.ErrorCorruptTemplate, env.FormatVersion)
	}
	if env.AlgorithmTag != TagHistogram && env.AlgorithmTag != TagSIFT {
		return nil, fmt.Errorf("%w: unrecognized algorithm tag %q", common.ErrorCorruptTemplate, env.AlgorithmTag)
	}
	if env.Template == nil || env.Template.Tag != env.AlgorithmTag {
		return nil, fmt.Errorf("%w: template/tag mismatch", common.ErrorCorruptTemplate)
	}
	if c.now().After(env.ExpiresAt) {
		return nil, fmt.Errorf("%w: envelope expired", common.ErrorCorruptTemplate)
	}

	return env.Template, nil
}

func tagOf(t *Template) AlgorithmTag {
	if t == nil {
		return ""
	}
	return t.Tag
}
