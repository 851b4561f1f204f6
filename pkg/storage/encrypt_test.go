package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardkeep/shardkeep/pkg/dberrors"
)

func newTestRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 4096)
	require.NoError(t, err)
	return key
}

func keyHashHex(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

func TestEncryptingStorageWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := newTestRSAKey(t)
	keys := map[string]*rsa.PrivateKey{keyHashHex(t, &key.PublicKey): key}
	enc, err := NewEncryptingStorage(inner, &key.PublicKey, keys)
	require.NoError(t, err)

	require.NoError(t, enc.Write(ctx, "doc", "application/bson", []byte("top secret payload")))

	plain, ok, err := enc.Read(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "top secret payload", string(plain))
}

func TestEncryptingStorageStoresCiphertextNotPlaintext(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := newTestRSAKey(t)
	keys := map[string]*rsa.PrivateKey{keyHashHex(t, &key.PublicKey): key}
	enc, err := NewEncryptingStorage(inner, &key.PublicKey, keys)
	require.NoError(t, err)

	require.NoError(t, enc.Write(ctx, "doc", "", []byte("top secret payload")))

	raw, ok, err := inner.Read(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(raw), "top secret payload")
	assert.Equal(t, psenMagic, string(raw[:4]))
}

func TestEncryptingStorageNoMatchingKeyFails(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	writeKey := newTestRSAKey(t)
	writerKeys := map[string]*rsa.PrivateKey{keyHashHex(t, &writeKey.PublicKey): writeKey}
	writer, err := NewEncryptingStorage(inner, &writeKey.PublicKey, writerKeys)
	require.NoError(t, err)
	require.NoError(t, writer.Write(ctx, "doc", "", []byte("secret")))

	otherKey := newTestRSAKey(t)
	readerKeys := map[string]*rsa.PrivateKey{keyHashHex(t, &otherKey.PublicKey): otherKey}
	reader, err := NewEncryptingStorage(inner, &otherKey.PublicKey, readerKeys)
	require.NoError(t, err)

	_, _, err = reader.Read(ctx, "doc")
	require.Error(t, err)
	assert.True(t, dberrors.Is(err, dberrors.ErrNoMatchingKey))
}

func TestEncryptingStorageKeyRotationKeepsOldKeyReadable(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	oldKey := newTestRSAKey(t)
	oldWriter, err := NewEncryptingStorage(inner, &oldKey.PublicKey, map[string]*rsa.PrivateKey{
		keyHashHex(t, &oldKey.PublicKey): oldKey,
	})
	require.NoError(t, err)
	require.NoError(t, oldWriter.Write(ctx, "old", "", []byte("written before rotation")))

	newKey := newTestRSAKey(t)
	rotated, err := NewEncryptingStorage(inner, &newKey.PublicKey, map[string]*rsa.PrivateKey{
		keyHashHex(t, &newKey.PublicKey): newKey,
		keyHashHex(t, &oldKey.PublicKey): oldKey,
	})
	require.NoError(t, err)

	plain, ok, err := rotated.Read(ctx, "old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "written before rotation", string(plain))

	require.NoError(t, rotated.Write(ctx, "new", "", []byte("written after rotation")))
	plain, ok, err = rotated.Read(ctx, "new")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "written after rotation", string(plain))
}

func TestEncryptingStorageDecryptsLegacyHeaderlessPayloadWithDefaultKey(t *testing.T) {
	ctx := context.Background()
	inner, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	defaultKey := newTestRSAKey(t)
	enc, err := NewEncryptingStorage(inner, &defaultKey.PublicKey, map[string]*rsa.PrivateKey{
		DefaultKeyLabel: defaultKey,
	})
	require.NoError(t, err)

	legacy, err := buildLegacyPayload(t, &defaultKey.PublicKey, []byte("pre-header secret"))
	require.NoError(t, err)
	require.NoError(t, inner.Write(ctx, "legacy-doc", "", legacy))

	plain, ok, err := enc.Read(ctx, "legacy-doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pre-header secret", string(plain))
}

// buildLegacyPayload constructs a pre-PSEN-header object: a bare
// wrappedKey||iv||ciphertext, matching what EncryptingStorage wrote
// before the header format was introduced.
func buildLegacyPayload(t *testing.T, pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	t.Helper()
	aesKey := make([]byte, aesKeySize)
	_, err := rand.Read(aesKey)
	require.NoError(t, err)
	iv := make([]byte, ivSize)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, pub, aesKey)
	require.NoError(t, err)

	out := make([]byte, 0, wrappedKeyLen+ivSize+len(ciphertext))
	out = append(out, wrappedKey...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}
