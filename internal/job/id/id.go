// Package id provides unique identifier generation for jobs.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Prefix starts every generated id.
const Prefix = "vid-"

// Generate creates a new unique job ID.
// Format: vid-<unix-millis>-<random>
// Example: vid-1756800000123-a1b2c3d4e5f6
func Generate() string {
	timestamp := time.Now().UnixMilli()
	random := make([]byte, 6)
	if _, err := rand.Read(random); err != nil {
		// Fallback to the nanosecond clock if crypto/rand fails
		return fmt.Sprintf("%s%d-%x", Prefix, timestamp, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s%d-%s", Prefix, timestamp, hex.EncodeToString(random))
}
