package kms

import (
	"encoding/json"
	"fmt"
)

// StorageCreds are a user's own S3-compatible credentials. They are stored in
// Postgres only in KMS-encrypted form and decrypted in-process right before a
// prune run opens the user's bucket.
type StorageCreds struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Region          string `json:"region,omitempty"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// SealCreds serialises and encrypts credentials for storage.
func (e *Encryptor) SealCreds(c StorageCreds) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("kms: marshal creds: %w", err)
	}
	return e.Encrypt(string(b))
}

// OpenCreds decrypts and deserialises a credentials blob produced by SealCreds.
func (e *Encryptor) OpenCreds(ciphertext string) (StorageCreds, error) {
	var c StorageCreds
	plain, err := e.Decrypt(ciphertext)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(plain), &c); err != nil {
		return c, fmt.Errorf("kms: unmarshal creds: %w", err)
	}
	return c, nil
}
