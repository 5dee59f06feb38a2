package chunkfile

import "sync"

// BufferPool recycles chunk byte buffers so upload memory stays
// bounded by concurrency x chunk size instead of growing with every
// in-flight chunk read. Buffers are cleared before reuse to avoid
// leaking prior chunk contents.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a pool whose buffers default to capHint bytes.
func NewBufferPool(capHint int64) *BufferPool {
	if capHint <= 0 {
		capHint = MaxChunkSize
	}
	p := &BufferPool{}
	p.pool.New = func() interface{} {
		buf := make([]byte, capHint)
		return &buf
	}
	return p
}

// Get returns a buffer sized exactly to size, reusing pooled capacity
// when large enough.
func (p *BufferPool) Get(size int64) *[]byte {
	buf := p.pool.Get().(*[]byte)
	if int64(cap(*buf)) < size {
		fresh := make([]byte, size)
		return &fresh
	}
	*buf = (*buf)[:size]
	return buf
}

// Put clears and returns buf to the pool for reuse.
func (p *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	clear(*buf)
	p.pool.Put(buf)
}
