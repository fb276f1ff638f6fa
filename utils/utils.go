package utils

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
)

// Ternary operator
func Ternary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

func ArrayContains[T any](array []T, match func(elem T) bool) (int, bool) {
	for idx, elem := range array {
		if match(elem) {
			return idx, true
		}
	}

	return -1, false
}

func IsValidSubcommand(available []*cobra.Command, sub string) bool {
	_, found := ArrayContains(available, func(cmd *cobra.Command) bool {
		return cmd.Use == sub
	})
	return found
}

// UnmarshalFile reads a JSON file into dest; when decrypt is set the file
// content is treated as an encrypted config blob.
func UnmarshalFile(file string, dest any, decrypt bool) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %s", file, err)
	}

	if decrypt {
		decrypted, err := DecryptConfig(string(data))
		if err != nil {
			return err
		}
		data = []byte(decrypted)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal file %s: %s", file, err)
	}

	return nil
}

func ULID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
