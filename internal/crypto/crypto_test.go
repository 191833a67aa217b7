package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := `{"access_token":"ya29.secret","refresh_token":"1//refresh"}`

	ciphertext, err := EncryptString(plaintext, "unit-test-key")
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptString(ciphertext, "unit-test-key")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptProducesUniqueCiphertext(t *testing.T) {
	first, err := EncryptString("same input", "key")
	require.NoError(t, err)
	second, err := EncryptString("same input", "key")
	require.NoError(t, err)

	// random nonce per call
	assert.NotEqual(t, first, second)
}

func TestDecryptWrongKey(t *testing.T) {
	ciphertext, err := EncryptString("secret", "right-key")
	require.NoError(t, err)

	_, err = DecryptString(ciphertext, "wrong-key")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	ciphertext, err := EncryptString("secret", "key")
	require.NoError(t, err)

	tampered := "A" + ciphertext[1:]
	_, err = DecryptString(tampered, "key")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestEmptyKeyRejected(t *testing.T) {
	_, err := EncryptString("secret", "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecryptString("whatever", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
