/*
Package storage defines the flat byte-namespace abstraction the document
store is built on, and provides three concrete backends plus a transparent
encrypting wrapper usable around any of them.

# Architecture

	┌──────────────────── STORAGE SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Storage interface              │          │
	│  │  Write / Read / WriteStream / ReadStream    │          │
	│  │  Info / FileExists / DeleteFile             │          │
	│  │  ListFiles / ListDirs                       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│       ┌─────────────┼──────────────┐                      │
	│       │              │              │                      │
	│  ┌────▼────┐   ┌─────▼─────┐  ┌────▼────┐                │
	│  │ Local   │   │   Bolt    │  │   S3    │                │
	│  │ (os)    │   │ (bbolt)   │  │(aws-sdk)│                │
	│  └─────────┘   └───────────┘  └─────────┘                │
	│                                                            │
	│  Any of the above may be wrapped:                         │
	│  ┌────────────────────────────────────────────┐          │
	│  │          EncryptingStorage                  │          │
	│  │  PSEN header: magic+version+type+keyHash    │          │
	│  │  + 512B RSA-wrapped AES key + 16B IV         │          │
	│  │  + AES-256-CBC ciphertext                   │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

Every backend satisfies the same flat path-like namespace: paths use
forward slashes; "directories" are a listing convenience (a common
prefix ending in "/"), not a filesystem requirement for BoltStorage or
S3Storage.

# Concurrency

The namespace is assumed to have exactly one writer process. No
cross-process locking is provided by LocalStorage or S3Storage;
BoltStorage inherits bbolt's single-writer file lock for free, but that
only protects against other BoltStorage instances, not a mixed
Local/Bolt/S3 deployment pointed at the same path.

# Security

EncryptingStorage never stores the RSA private key; it only ever holds
the public key used to wrap new per-object AES keys, plus whatever
private keys the caller configured for decryption. A corrupt or
truncated ciphertext surfaces as dberrors.ErrDecryptionFailed, never as
a panic.
*/
package storage
