package partial

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/careloop/surveyengine/internal/types"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts and decrypts partial-answer values with
// XChaCha20-Poly1305. New values are sealed with the primary key; stored
// values decrypt with whichever key id the row recorded, so rotation never
// strands drafts.
type Sealer struct {
	primaryID string
	aeads     map[string]cipher.AEAD
}

// NewSealer builds a Sealer from the configured key set. Key ids are UUIDv7
// hex, so the lexicographically largest id is the newest key; it becomes the
// primary.
func NewSealer(keys map[string][]byte) (*Sealer, error) {
	if len(keys) == 0 {
		return nil, types.ErrNoSealKey
	}

	aeads := make(map[string]cipher.AEAD, len(keys))
	ids := make([]string, 0, len(keys))
	for id, key := range keys {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("invalid key %s: %w", id, err)
		}
		aeads[id] = aead
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return &Sealer{primaryID: ids[len(ids)-1], aeads: aeads}, nil
}

// Seal encrypts a value with the primary key. The nonce is prepended to the
// returned ciphertext.
func (s *Sealer) Seal(value types.AnswerValue) (keyID string, ciphertext []byte, err error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode answer value: %w", err)
	}

	aead := s.aeads[s.primaryID]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.primaryID, aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a stored ciphertext with the key the row was sealed under.
func (s *Sealer) Open(keyID string, ciphertext []byte) (types.AnswerValue, error) {
	aead, ok := s.aeads[keyID]
	if !ok {
		return types.AnswerValue{}, types.ErrUnknownSealKey
	}

	if len(ciphertext) < aead.NonceSize() {
		return types.AnswerValue{}, fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return types.AnswerValue{}, fmt.Errorf("failed to decrypt answer value: %w", err)
	}

	var value types.AnswerValue
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return types.AnswerValue{}, fmt.Errorf("failed to decode answer value: %w", err)
	}

	return value, nil
}
