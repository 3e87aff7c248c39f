// Package pool provides buffer reuse for streaming transfers.
//
// Copy buffers move bytes from a caller's reader into the upload pipe; part
// buffers hold one multipart chunk while it is in flight. Reusing both keeps
// allocation flat no matter how many files pass through a client.
package pool

import (
	"sync"
)

const (
	// CopyBufferSize defines the size for stream copy buffers (64KB)
	CopyBufferSize = 64 * 1024
)

// BufferPool manages reusable copy buffers.
type BufferPool struct {
	copy *sync.Pool
}

// NewBufferPool creates a new buffer pool with default sizes.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		copy: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, CopyBufferSize)
				return &buf
			},
		},
	}
}

// GetCopy returns a full-length copy buffer from the pool.
// The caller is responsible for calling PutCopy to return the buffer to the pool.
func (bp *BufferPool) GetCopy() []byte {
	bufPtr := bp.copy.Get().(*[]byte)
	return (*bufPtr)[:CopyBufferSize]
}

// PutCopy returns a copy buffer to the pool.
// The buffer should not be used after calling PutCopy.
func (bp *BufferPool) PutCopy(buf []byte) {
	if cap(buf) != CopyBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	bp.copy.Put(&buf)
}

// PartPool hands out fixed-size buffers for multipart chunks.
type PartPool struct {
	size int
	pool sync.Pool
}

// NewPartPool creates a pool of buffers of exactly size bytes.
func NewPartPool(size int) *PartPool {
	p := &PartPool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the buffer size handed out by the pool.
func (p *PartPool) Size() int {
	return p.size
}

// Get returns a full-length part buffer.
func (p *PartPool) Get() []byte {
	bufPtr := p.pool.Get().(*[]byte)
	return (*bufPtr)[:p.size]
}

// Put returns a part buffer. Buffers of a different capacity are dropped.
func (p *PartPool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}

// Global buffer pool instance for use throughout the module.
var globalBufferPool = NewBufferPool()

// GetCopyBuffer returns a copy buffer from the global pool.
func GetCopyBuffer() []byte {
	return globalBufferPool.GetCopy()
}

// PutCopyBuffer returns a copy buffer to the global pool.
func PutCopyBuffer(buf []byte) {
	globalBufferPool.PutCopy(buf)
}
