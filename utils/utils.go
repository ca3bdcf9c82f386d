package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// Ternary returns a when cond holds, b otherwise.
func Ternary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

// ArrayContains returns the index of the first element matching the
// predicate.
func ArrayContains[T any](set []T, match func(elem T) bool) (int, bool) {
	for idx, elem := range set {
		if match(elem) {
			return idx, true
		}
	}

	return -1, false
}

// ForEach stops at the first error.
func ForEach[T any](set []T, action func(elem T) error) error {
	for _, elem := range set {
		if err := action(elem); err != nil {
			return err
		}
	}

	return nil
}

// ULID returns a lexically sortable unique id.
func ULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// IsValidSubcommand reports whether cmd is one of the registered commands.
func IsValidSubcommand(available []*cobra.Command, cmd string) bool {
	for _, s := range available {
		if cmd == s.Name() {
			return true
		}
	}
	return false
}

// Unmarshal converts from into the structure of to by a JSON round trip.
func Unmarshal(from, to any) error {
	b, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("error marshaling object: %s", err)
	}
	if err := json.Unmarshal(b, to); err != nil {
		return fmt.Errorf("error unmarshaling to object: %s", err)
	}

	return nil
}

// UnmarshalFile reads a JSON or YAML file into dest, decrypting it first when
// an encryption key is configured. ${VAR} references are expanded from the
// environment before decoding.
func UnmarshalFile(file string, dest any) error {
	if _, err := os.Stat(file); err != nil {
		return fmt.Errorf("file not found : %s", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("could not open file: %s", err)
	}

	// encrypted configs are stored as one base64 JSON string
	if trimmed := strings.TrimSpace(string(data)); EncryptionEnabled() && strings.HasPrefix(trimmed, `"`) {
		decrypted, err := DecryptConfig(context.Background(), trimmed)
		if err != nil {
			return fmt.Errorf("failed to decrypt file[%s]: %s", file, err)
		}
		data = []byte(decrypted)
	}

	data = []byte(os.ExpandEnv(string(data)))
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("failed to convert yaml file[%s]: %s", file, err)
		}
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal file[%s]: %s", file, err)
	}

	return nil
}
