package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deckstream/internal/domain"
)

// FileTransport replays recorded generation streams. If path is a directory,
// the stream for presentation "p1" is read from "<path>/p1.sse"; otherwise
// every request replays the same file.
type FileTransport struct {
	path      string
	chunkSize int
	delay     time.Duration
}

// FileOption configures a FileTransport.
type FileOption func(*FileTransport)

// WithPacing splits the replay into reads of at most size bytes, pausing
// delay before each one.
func WithPacing(size int, delay time.Duration) FileOption {
	return func(t *FileTransport) {
		if size > 0 {
			t.chunkSize = size
		}
		t.delay = delay
	}
}

// NewFileTransport creates a FileTransport reading from path.
func NewFileTransport(path string, opts ...FileOption) *FileTransport {
	t := &FileTransport{path: path}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *FileTransport) resolve(req domain.StreamRequest) (string, error) {
	info, err := os.Stat(t.path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return t.path, nil
	}
	name := filepath.Base(filepath.Clean("/" + req.PresentationID))
	if name == "/" || name == "." {
		return "", fmt.Errorf("invalid presentation id %q", req.PresentationID)
	}
	return filepath.Join(t.path, name+".sse"), nil
}

// Open implements domain.StreamTransport.
func (t *FileTransport) Open(ctx context.Context, req domain.StreamRequest) (io.ReadCloser, error) {
	path, err := t.resolve(req)
	if err != nil {
		return nil, domain.NewDomainError("FileTransport.Open", domain.ErrTransport, err.Error())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewDomainError("FileTransport.Open", domain.ErrTransport, err.Error())
	}
	if t.chunkSize <= 0 && t.delay <= 0 {
		return f, nil
	}
	return &pacedReader{f: f, size: t.chunkSize, delay: t.delay, closed: make(chan struct{})}, nil
}

// pacedReader throttles reads from a file. Close unblocks a pending pause.
type pacedReader struct {
	f      *os.File
	size   int
	delay  time.Duration
	closed chan struct{}
	once   sync.Once
}

func (r *pacedReader) Read(p []byte) (int, error) {
	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		select {
		case <-timer.C:
		case <-r.closed:
			timer.Stop()
			return 0, os.ErrClosed
		}
	}
	if r.size > 0 && len(p) > r.size {
		p = p[:r.size]
	}
	return r.f.Read(p)
}

func (r *pacedReader) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		err = r.f.Close()
	})
	return err
}

var _ domain.StreamTransport = (*FileTransport)(nil)
