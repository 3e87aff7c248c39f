// Package testutil provides test helper functions.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
	"time"
)

// GenerateRandomData generates random bytes of the specified size.
// This is useful for creating test data for uploads.
func GenerateRandomData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rand.Intn(256))
	}
	return data
}

var nameCounter atomic.Int64

// GenerateTestBucketName generates a unique bucket name for testing.
func GenerateTestBucketName(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano()%1_000_000_000, nameCounter.Add(1))
}

// BytesOpener returns a Payload.Open function over data.
func BytesOpener(data []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

// StringOpener returns a Payload.Open function over s.
func StringOpener(s string) func() (io.ReadCloser, error) {
	return BytesOpener([]byte(s))
}
