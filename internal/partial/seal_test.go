package partial

import (
	"bytes"
	"errors"
	"testing"

	"github.com/careloop/surveyengine/internal/types"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b
	}
	return key
}

const (
	oldKeyID = "0123456789abcdef0123456789abcdef"
	newKeyID = "ffffffffffffffffffffffffffffffff"
)

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(map[string][]byte{newKeyID: testKey(1)})
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}

	n := 4.5
	value := types.AnswerValue{Text: "free text", Number: &n, Options: []types.OptionID{"opt-1"}}

	keyID, ciphertext, err := sealer.Seal(value)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if keyID != newKeyID {
		t.Errorf("keyID = %s, want %s", keyID, newKeyID)
	}
	if bytes.Contains(ciphertext, []byte("free text")) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := sealer.Open(keyID, ciphertext)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got.Text != value.Text || *got.Number != *value.Number || len(got.Options) != 1 {
		t.Errorf("Open() = %+v, want %+v", got, value)
	}
}

// New values seal under the newest key; values sealed under an older key
// still open.
func TestSealer_Rotation(t *testing.T) {
	oldSealer, err := NewSealer(map[string][]byte{oldKeyID: testKey(1)})
	if err != nil {
		t.Fatal(err)
	}
	keyID, ciphertext, err := oldSealer.Seal(types.AnswerValue{Text: "draft"})
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := NewSealer(map[string][]byte{oldKeyID: testKey(1), newKeyID: testKey(2)})
	if err != nil {
		t.Fatal(err)
	}

	got, err := rotated.Open(keyID, ciphertext)
	if err != nil {
		t.Fatalf("Open() with rotated key set error = %v", err)
	}
	if got.Text != "draft" {
		t.Errorf("Text = %s, want draft", got.Text)
	}

	sealID, _, err := rotated.Seal(types.AnswerValue{Text: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if sealID != newKeyID {
		t.Errorf("Seal key = %s, want primary %s", sealID, newKeyID)
	}
}

func TestSealer_UnknownKeyID(t *testing.T) {
	sealer, err := NewSealer(map[string][]byte{newKeyID: testKey(1)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = sealer.Open("00000000000000000000000000000000", []byte("junk"))
	if !errors.Is(err, types.ErrUnknownSealKey) {
		t.Errorf("Open() error = %v, want ErrUnknownSealKey", err)
	}
}

func TestSealer_TamperedCiphertext(t *testing.T) {
	sealer, err := NewSealer(map[string][]byte{newKeyID: testKey(1)})
	if err != nil {
		t.Fatal(err)
	}

	keyID, ciphertext, err := sealer.Seal(types.AnswerValue{Text: "intact"})
	if err != nil {
		t.Fatal(err)
	}
	ciphertext[len(ciphertext)-1] ^= 0x01

	if _, err := sealer.Open(keyID, ciphertext); err == nil {
		t.Error("Open() succeeded on tampered ciphertext")
	}
}

func TestSealer_NoKeys(t *testing.T) {
	if _, err := NewSealer(nil); !errors.Is(err, types.ErrNoSealKey) {
		t.Errorf("NewSealer(nil) error = %v, want ErrNoSealKey", err)
	}
}
