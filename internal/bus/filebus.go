package bus

import (
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wrale/thermal-governor/internal/governor"
)

// FileSource watches a single file for writes and treats its trimmed
// contents as the requested profile name, for hosts with no desktop
// session bus. It uses fsnotify instead of busy-polling the file.
type FileSource struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	events  chan governor.Profile
	done    chan struct{}
}

// NewFileSource starts watching path in the background. The file need not
// exist yet; its parent directory must.
func NewFileSource(path string, logger *zap.Logger) (*FileSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, governor.E("NewFileSource", governor.ErrCodeBus, "creating fsnotify watcher", err)
	}
	dir := parentDir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, governor.E("NewFileSource", governor.ErrCodeBus, "watching "+dir, err)
	}

	s := &FileSource{
		path:    path,
		logger:  logger,
		watcher: watcher,
		events:  make(chan governor.Profile, 8),
		done:    make(chan struct{}),
	}

	if p, ok := s.readCurrent(); ok {
		s.events <- p
	}

	go s.run()
	return s, nil
}

func (s *FileSource) Events() <-chan governor.Profile { return s.events }

func (s *FileSource) Close() error {
	close(s.done)
	return s.watcher.Close()
}

func (s *FileSource) run() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if p, ok := s.readCurrent(); ok {
				select {
				case s.events <- p:
				case <-s.done:
					return
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file bus watch error", zap.Error(err))
		}
	}
}

func (s *FileSource) readCurrent() (governor.Profile, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false
	}
	p := governor.Profile(strings.TrimSpace(string(data)))
	if !p.Valid() {
		s.logger.Warn("file bus ignoring unrecognized profile", zap.String("raw", string(p)))
		return "", false
	}
	return p, true
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}
