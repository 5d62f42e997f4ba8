package overlay

import (
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// passthroughFile is the file handle returned by Open/Create: reads
// and writes go straight to the already-materialized physical file.
type passthroughFile struct {
	mu sync.Mutex
	f  *os.File
}

func (p *passthroughFile) readAt(dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.f.ReadAt(dest, off)
	if err != nil && err != io.EOF {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (p *passthroughFile) writeAt(data []byte, off int64) (uint32, syscall.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.f.WriteAt(data, off)
	if err != nil {
		return 0, syscall.EIO
	}
	return uint32(n), 0
}

func (p *passthroughFile) flush() syscall.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()

	fd, err := syscall.Dup(int(p.f.Fd()))
	if err != nil {
		return fs2errno(err)
	}
	return fs2errno(syscall.Close(fd))
}

func (p *passthroughFile) fsync() syscall.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fs2errno(p.f.Sync())
}

func (p *passthroughFile) release() syscall.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fs2errno(p.f.Close())
}

func (p *passthroughFile) truncate(size uint64) syscall.Errno {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fs2errno(p.f.Truncate(int64(size)))
}

func fs2errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return syscall.EIO
}
