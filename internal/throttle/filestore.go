package throttle

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"intraday/internal/logger"
)

// Snapshot 是某一时刻生效的频率配置。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   Config
}

type ChangeListener func(Snapshot)

// FileStore 以 YAML 文件保存频率配置，加载与保存时都做校验，并监听文件变化热加载。
type FileStore struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

type fileLayout struct {
	Frequency Config `yaml:"frequency"`
}

// OpenFileStore 读取配置；文件不存在时写入 DefaultConfig。
func OpenFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: frequency config path is empty", ErrConfiguration)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeConfigFile(path, DefaultConfig()); err != nil {
			return nil, err
		}
		logger.Infof("Frequency config not found, wrote defaults to %s", path)
	}
	fs := &FileStore{path: path}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Watch 开启热加载。非法的新配置会被拒绝并保留旧快照。
func (s *FileStore) Watch() {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.OnConfigChange(func(evt fsnotify.Event) {
		if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := s.reload(); err != nil {
			logger.Errorf("Frequency config reload rejected: %v", err)
			return
		}
		s.notifyListeners()
	})
	v.WatchConfig()
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

func (s *FileStore) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Current 返回当前配置的副本。
func (s *FileStore) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Config.clone()
}

func (s *FileStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snapshot
	snap.Config = snap.Config.clone()
	return snap
}

// Save 校验后原子写盘，并立即替换内存快照。
func (s *FileStore) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := writeConfigFile(s.path, cfg); err != nil {
		return err
	}
	s.swap(cfg)
	s.notifyListeners()
	return nil
}

func (s *FileStore) reload() error {
	cfg, err := readConfigFile(s.path)
	if err != nil {
		return err
	}
	s.swap(cfg)
	logger.Infof("Frequency config loaded %d slabs from %s", len(cfg.Slabs), filepath.Base(s.path))
	return nil
}

func (s *FileStore) swap(cfg Config) {
	s.mu.Lock()
	s.snapshot = Snapshot{
		Version:  s.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   cfg.clone(),
	}
	s.mu.Unlock()
}

func (s *FileStore) notifyListeners() {
	s.mu.RLock()
	snap := s.snapshot
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("frequency listener panic: %v", r)
				}
			}()
			cb(Snapshot{Version: snap.Version, LoadedAt: snap.LoadedAt, Config: snap.Config.clone()})
		}(fn)
	}
}

func readConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}
	var layout fileLayout
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}
	if err := layout.Frequency.Validate(); err != nil {
		return Config{}, err
	}
	return layout.Frequency, nil
}

func writeConfigFile(path string, cfg Config) error {
	data, err := yaml.Marshal(fileLayout{Frequency: cfg})
	if err != nil {
		return fmt.Errorf("encode frequency config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic 写临时文件、fsync 后 rename，再尽力 fsync 父目录。
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
