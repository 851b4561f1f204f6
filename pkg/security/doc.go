// Package security generates and persists the RSA key material used by
// pkg/storage's encrypting layer (spec section 4.3/6.4): an operator
// runs `shardkeepd keygen` once to produce a public key for
// pkg/config.EncryptionConfig.PublicKeyPath and a matching private key
// for the PrivateKeys map.
package security
