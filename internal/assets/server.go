package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/smoothlife/internal/logging"
	"github.com/gogpu/smoothlife/internal/parallel"
)

// ErrServerClosed is returned by operations on a closed server.
var ErrServerClosed = errors.New("assets: server closed")

// LoadState is the load status of a handle.
type LoadState int

const (
	// NotLoaded means the server has never been asked for the handle.
	NotLoaded LoadState = iota
	// Loading means a load is in flight and no value is available yet.
	Loading
	// Loaded means a value is available in the store.
	Loaded
	// Failed means the first load failed; see Server.Err.
	Failed
)

// String returns the string representation of LoadState.
func (s LoadState) String() string {
	switch s {
	case NotLoaded:
		return "NotLoaded"
	case Loading:
		return "Loading"
	case Loaded:
		return "Loaded"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

type loadResult struct {
	handle Handle[Shader]
	shader *Shader
	err    error
}

type record struct {
	handle Handle[Shader]
	state  LoadState
	err    error
}

// Server loads shader assets asynchronously from a file system.
//
// Loads run on the task pool; finished loads are applied to the store by
// Update, which the frame loop calls once per frame. Until then the store
// keeps serving the previous value, so a hot reload never leaves a frame
// without a shader.
type Server struct {
	fsys    fs.FS
	pool    *parallel.WorkerPool
	shaders *Assets[Shader]

	mu       sync.Mutex
	byPath   map[string]*record
	byID     map[uint64]*record
	finished []loadResult
	inflight int
	idle     chan struct{}
	closed   bool

	watcher *fsnotify.Watcher
	watchWG sync.WaitGroup
}

// NewServer creates a server reading from fsys and running loads on pool.
func NewServer(fsys fs.FS, pool *parallel.WorkerPool) *Server {
	return &Server{
		fsys:    fsys,
		pool:    pool,
		shaders: NewAssets[Shader](),
		byPath:  make(map[string]*record),
		byID:    make(map[uint64]*record),
		idle:    make(chan struct{}),
	}
}

// Shaders returns the store that loaded shaders are applied to.
func (s *Server) Shaders() *Assets[Shader] {
	return s.shaders
}

// Load returns the handle for path, starting a load the first time the
// path is requested. Repeated calls return the same handle.
func (s *Server) Load(path string) Handle[Shader] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byPath[path]; ok {
		return r.handle
	}

	r := &record{handle: NewHandle[Shader](path), state: Loading}
	s.byPath[path] = r
	s.byID[r.handle.id] = r
	if s.closed {
		r.state, r.err = Failed, ErrServerClosed
		return r.handle
	}
	s.startLocked(r.handle)
	return r.handle
}

// startLocked queues a load of h. The caller must hold s.mu.
func (s *Server) startLocked(h Handle[Shader]) {
	s.inflight++
	s.pool.Submit(func() {
		sh, err := s.read(h.path)
		s.complete(loadResult{handle: h, shader: sh, err: err})
	})
}

func (s *Server) read(path string) (*Shader, error) {
	src, err := fs.ReadFile(s.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("assets: load %s: %w", path, err)
	}
	return ParseShader(path, string(src))
}

func (s *Server) complete(res loadResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished = append(s.finished, res)
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
		s.idle = make(chan struct{})
	}
}

// Update applies finished loads to the store and returns how many were
// applied.
func (s *Server) Update() int {
	s.mu.Lock()
	done := s.finished
	s.finished = nil
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0
	}

	log := logging.Logger()
	for _, res := range done {
		s.mu.Lock()
		r := s.byID[res.handle.id]
		if res.err != nil {
			r.err = res.err
			if r.state != Loaded {
				r.state = Failed
			}
		} else {
			r.err = nil
			r.state = Loaded
		}
		s.mu.Unlock()

		if res.err != nil {
			log.Warn("assets: shader load failed", "path", res.handle.path, "err", res.err)
			continue
		}
		s.shaders.Set(res.handle, *res.shader)
		log.Debug("assets: shader loaded", "path", res.handle.path,
			"entry_points", len(res.shader.EntryPoints),
			"generation", s.shaders.Generation(res.handle))
	}
	return len(done)
}

// LoadState reports the load status of h.
func (s *Server) LoadState(h Handle[Shader]) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byID[h.id]; ok {
		return r.state
	}
	return NotLoaded
}

// Err returns the most recent load error of h, or nil.
func (s *Server) Err(h Handle[Shader]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.byID[h.id]; ok {
		return r.err
	}
	return nil
}

// Reload queues a new load of an already requested path. Unknown paths
// are ignored and reported false.
func (s *Server) Reload(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byPath[path]
	if !ok || s.closed {
		return false
	}
	s.startLocked(r.handle)
	return true
}

// WaitIdle blocks until no load is in flight or ctx is done.
func (s *Server) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.inflight == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.idle
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Watch reloads requested shaders when files under dir change. dir must
// be the directory the server's file system is rooted at.
func (s *Server) Watch(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("assets: watch: %w", err)
	}
	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("assets: watch %s: %w", dir, err)
	}

	s.watcher = w
	s.watchWG.Add(1)
	go s.watch(dir, w)
	logging.Logger().Info("assets: watching for shader changes", "dir", dir)
	return nil
}

func (s *Server) watch(dir string, w *fsnotify.Watcher) {
	defer s.watchWG.Done()

	log := logging.Logger()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			rel, err := filepath.Rel(dir, ev.Name)
			if err != nil {
				continue
			}
			path := filepath.ToSlash(rel)
			if s.Reload(path) {
				log.Info("assets: reloading shader", "path", path)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn("assets: watcher error", "err", err)
		}
	}
}

// Close stops the watcher. In-flight loads still complete but are never
// applied.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
		s.watchWG.Wait()
	}
	return err
}
