package utils

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/datazip-inc/resttap/constants"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
)

const kmsKeyPrefix = "arn:aws:kms:"

// EncryptionEnabled reports whether config files are expected to be encrypted
func EncryptionEnabled() bool {
	return strings.TrimSpace(viper.GetString(constants.EncryptionKey)) != ""
}

// Decrypt opens cipherData with the configured key: a KMS key ARN decrypts
// through AWS KMS, any other value is hashed into an AES-GCM key whose nonce
// prefixes the ciphertext. Without a key the data is returned unchanged.
func Decrypt(ctx context.Context, cipherData []byte) (string, error) {
	key := strings.TrimSpace(viper.GetString(constants.EncryptionKey))
	if key == "" {
		return string(cipherData), nil
	}

	if strings.HasPrefix(key, kmsKeyPrefix) {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to load AWS config: %w", err)
		}
		out, err := kms.NewFromConfig(cfg).Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: cipherData,
			KeyId:          &key,
		})
		if err != nil {
			return "", fmt.Errorf("kms decryption failed: %w", err)
		}
		return string(out.Plaintext), nil
	}

	aead, err := localCipher(key)
	if err != nil {
		return "", err
	}
	nonceSize := aead.NonceSize()
	if len(cipherData) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := cipherData[:nonceSize], cipherData[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// DecryptConfig decrypts a base64 (URL alphabet) encoded config document,
// optionally wrapped in a JSON string.
func DecryptConfig(ctx context.Context, encryptedConfig string) (string, error) {
	encryptedConfig = strings.TrimSpace(encryptedConfig)
	var unquoted string
	if err := json.Unmarshal([]byte(encryptedConfig), &unquoted); err != nil {
		unquoted = encryptedConfig
	}

	encryptedData, err := base64.URLEncoding.DecodeString(unquoted)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 data: %s", err)
	}

	decrypted, err := Decrypt(ctx, encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt data: %s", err)
	}
	return decrypted, nil
}

func localCipher(key string) (cipher.AEAD, error) {
	hash := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(hash[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
