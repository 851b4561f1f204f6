package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/shardkeep/shardkeep/pkg/dberrors"
)

const (
	psenMagic   = "PSEN"
	psenVersion = uint32(1)
	psenType    = "A2CB"

	aesKeySize    = 32 // AES-256
	ivSize        = 16
	wrappedKeyLen = 512 // PKCS#1 v1.5 output size for a 4096-bit RSA key

	headerLen = 4 + 4 + 4 + sha256.Size + wrappedKeyLen + ivSize
)

// DefaultKeyLabel is the key-map entry used to decrypt legacy
// (headerless) payloads and, conventionally, the most recently
// configured encryption key.
const DefaultKeyLabel = "default"

// EncryptingStorage wraps any Storage with a transparent hybrid
// RSA/AES envelope: each object is encrypted with a fresh per-object
// AES-256-CBC key, which is itself wrapped with an RSA public key and
// stored in the object's header (spec's PSEN format). Decryption
// looks up the matching private key by the header's public-key hash,
// falling back to the DefaultKeyLabel entry for headerless legacy
// payloads.
type EncryptingStorage struct {
	inner       Storage
	publicKey   *rsa.PublicKey
	keyHash     [32]byte                   // sha256 of the current public key's DER encoding
	privateKeys map[string]*rsa.PrivateKey // hex(keyHash) -> key, plus DefaultKeyLabel
}

// NewEncryptingStorage wraps inner. publicKey is used to encrypt new
// writes; privateKeys maps hex-encoded public-key hashes (and
// DefaultKeyLabel) to the private keys used to decrypt on read.
func NewEncryptingStorage(inner Storage, publicKey *rsa.PublicKey, privateKeys map[string]*rsa.PrivateKey) (*EncryptingStorage, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal public key: %w", err)
	}
	return &EncryptingStorage{
		inner:       inner,
		publicKey:   publicKey,
		keyHash:     sha256.Sum256(der),
		privateKeys: privateKeys,
	}, nil
}

func (s *EncryptingStorage) encrypt(plaintext []byte) ([]byte, error) {
	aesKey := make([]byte, aesKeySize)
	if _, err := io.ReadFull(rand.Reader, aesKey); err != nil {
		return nil, fmt.Errorf("storage: generate object key: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("storage: generate iv: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("storage: create cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, s.publicKey, aesKey)
	if err != nil {
		return nil, fmt.Errorf("storage: wrap object key: %w", err)
	}

	buf := make([]byte, 0, headerLen+len(ciphertext))
	buf = append(buf, psenMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, psenVersion)
	buf = append(buf, psenType...)
	buf = append(buf, s.keyHash[:]...)
	buf = append(buf, wrappedKey...)
	buf = append(buf, iv...)
	buf = append(buf, ciphertext...)
	return buf, nil
}

func (s *EncryptingStorage) decrypt(data []byte) ([]byte, error) {
	if len(data) < 4 || string(data[:4]) != psenMagic {
		return s.decryptLegacy(data)
	}
	if len(data) < headerLen {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrDecryptionFailed)
	}
	off := 4
	version := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if version != psenVersion {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrUnsupportedVersion)
	}
	off += 4 // type, not currently branched on
	keyHash := data[off : off+sha256.Size]
	off += sha256.Size
	wrappedKey := data[off : off+wrappedKeyLen]
	off += wrappedKeyLen
	iv := data[off : off+ivSize]
	off += ivSize
	ciphertext := data[off:]

	priv, ok := s.privateKeys[hex.EncodeToString(keyHash)]
	if !ok {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrNoMatchingKey)
	}
	return s.decryptWith(priv, wrappedKey, iv, ciphertext)
}

// decryptLegacy handles headerless payloads laid out as
// wrappedKey(512 bytes)||iv(16 bytes)||ciphertext: the same envelope as
// a PSEN object without its header. The AES key is unwrapped with the
// DefaultKeyLabel private key.
func (s *EncryptingStorage) decryptLegacy(data []byte) ([]byte, error) {
	if len(data) < wrappedKeyLen+ivSize {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrDecryptionFailed)
	}
	priv, ok := s.privateKeys[DefaultKeyLabel]
	if !ok {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrNoMatchingKey)
	}
	wrappedKey := data[:wrappedKeyLen]
	iv := data[wrappedKeyLen : wrappedKeyLen+ivSize]
	ciphertext := data[wrappedKeyLen+ivSize:]
	return s.decryptWith(priv, wrappedKey, iv, ciphertext)
}

func (s *EncryptingStorage) decryptWith(priv *rsa.PrivateKey, wrappedKey, iv, ciphertext []byte) ([]byte, error) {
	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrappedKey)
	if err != nil {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrDecryptionFailed)
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrDecryptionFailed)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrDecryptionFailed)
	}
	plainPadded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainPadded, ciphertext)
	plain, err := pkcs7Unpad(plainPadded)
	if err != nil {
		return nil, dberrors.Wrap("storage.decrypt", "", dberrors.ErrDecryptionFailed)
	}
	return plain, nil
}

func (s *EncryptingStorage) Write(ctx context.Context, path, contentType string, data []byte) error {
	enc, err := s.encrypt(data)
	if err != nil {
		return err
	}
	return s.inner.Write(ctx, path, contentType, enc)
}

func (s *EncryptingStorage) WriteStream(ctx context.Context, path, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("storage: buffer stream for %s: %w", path, err)
	}
	return s.Write(ctx, path, contentType, data)
}

func (s *EncryptingStorage) Read(ctx context.Context, path string) ([]byte, bool, error) {
	raw, ok, err := s.inner.Read(ctx, path)
	if err != nil || !ok {
		return nil, ok, err
	}
	plain, err := s.decrypt(raw)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (s *EncryptingStorage) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dberrors.Wrap("storage.ReadStream", path, dberrors.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Info reports the plaintext length, not the stored ciphertext's, so
// that callers comparing Info.Length against a Read result (e.g.
// pkg/collection's truncation check) see consistent numbers regardless
// of whether the backing Storage is encrypted. That means Info has to
// decrypt the object, unlike a plain passthrough stat.
func (s *EncryptingStorage) Info(ctx context.Context, path string) (*Info, bool, error) {
	info, ok, err := s.inner.Info(ctx, path)
	if err != nil || !ok {
		return info, ok, err
	}
	plain, ok, err := s.Read(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Info{
		Length:       int64(len(plain)),
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, true, nil
}

// FileExists, DeleteFile, ListFiles, and ListDirs are metadata or name
// operations and pass straight through; the envelope only affects the
// stored bytes, not the namespace around them.

func (s *EncryptingStorage) FileExists(ctx context.Context, path string) (bool, error) {
	return s.inner.FileExists(ctx, path)
}

func (s *EncryptingStorage) DeleteFile(ctx context.Context, path string) error {
	return s.inner.DeleteFile(ctx, path)
}

func (s *EncryptingStorage) ListFiles(ctx context.Context, prefix string, limit int, cursor string) (Page, error) {
	return s.inner.ListFiles(ctx, prefix, limit, cursor)
}

func (s *EncryptingStorage) ListDirs(ctx context.Context, prefix string, limit int, cursor string) (Page, error) {
	return s.inner.ListDirs(ctx, prefix, limit, cursor)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("storage: empty padded plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("storage: invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}
