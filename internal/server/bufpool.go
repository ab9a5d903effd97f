package server

import "sync"

// readBufferPool recycles the fixed-size scratch buffers used to pull
// one chunk off a client socket per readable event, avoiding a fresh
// allocation on every read in the hot path.
var readBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, readChunkSize)
		return &buf
	},
}

func getReadBuffer() *[]byte {
	return readBufferPool.Get().(*[]byte)
}

func putReadBuffer(bufPtr *[]byte) {
	readBufferPool.Put(bufPtr)
}
