// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all AdLens configuration.
type Config struct {
	Version int `yaml:"version"`

	Upload    UploadConfig    `yaml:"upload"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// UploadConfig bounds what the service accepts.
type UploadConfig struct {
	// MaxFileSize is the upload ceiling in bytes. Files above it are
	// rejected before any processing begins.
	MaxFileSize int64  `yaml:"max_file_size"`
	UploadDir   string `yaml:"upload_dir"`
	ResultsDir  string `yaml:"results_dir"`
}

// PipelineConfig controls the ingestion pipeline.
type PipelineConfig struct {
	// MaxConcurrent is the hard bound on simultaneously running
	// file-processing jobs.
	MaxConcurrent int `yaml:"max_concurrent"`

	// QueuePollInterval is how often the controller checks for admissible
	// queued jobs.
	QueuePollInterval time.Duration `yaml:"queue_poll_interval"`

	// JobTimeout is the advisory per-job processing ceiling.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// QueueRetention is how long a job may wait in the queue before it is
	// evicted with a failed status.
	QueueRetention time.Duration `yaml:"queue_retention"`

	// ProgressInterval bounds how often a job writes its status snapshot.
	ProgressInterval time.Duration `yaml:"progress_interval"`

	// BatchSize is the staging batch size for bulk loading.
	BatchSize int `yaml:"batch_size"`

	// CopyThreshold is the row count above which the bulk loader prefers
	// the staging-table copy path over batched upserts.
	CopyThreshold int `yaml:"copy_threshold"`

	// SampleSize caps the result snapshot's preview buffer.
	SampleSize int `yaml:"sample_size"`

	// ResultRetention is how long result and status files are kept.
	ResultRetention time.Duration `yaml:"result_retention"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// StorageConfig for the relational store.
type StorageConfig struct {
	Database string `yaml:"database"`
}

// CacheConfig for the optional Redis read-through cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	TTL      time.Duration `yaml:"ttl"`
}

// ArchiveConfig for optional S3 snapshot archival.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

// TelemetryConfig for optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	adlensDir := filepath.Join(homeDir, ".adlens")

	return &Config{
		Version: 1,
		Upload: UploadConfig{
			MaxFileSize: 200 << 20, // 200MB
			UploadDir:   filepath.Join(adlensDir, "uploads"),
			ResultsDir:  filepath.Join(adlensDir, "results"),
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:     2,
			QueuePollInterval: time.Second,
			JobTimeout:        time.Hour,
			QueueRetention:    2 * time.Hour,
			ProgressInterval:  5 * time.Second,
			BatchSize:         1000,
			CopyThreshold:     50000,
			SampleSize:        20,
			ResultRetention:   24 * time.Hour,
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Database: filepath.Join(adlensDir, "adlens.db"),
		},
		Cache: CacheConfig{
			Enabled: false,
			Address: "localhost:6379",
			TTL:     5 * time.Minute,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Prefix:  "snapshots/",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	m.ensureDirs()

	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/adlens/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".adlens", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".adlens.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if src.Upload.MaxFileSize != 0 {
		m.config.Upload.MaxFileSize = src.Upload.MaxFileSize
	}
	if src.Upload.UploadDir != "" {
		m.config.Upload.UploadDir = src.Upload.UploadDir
	}
	if src.Upload.ResultsDir != "" {
		m.config.Upload.ResultsDir = src.Upload.ResultsDir
	}

	if src.Pipeline.MaxConcurrent != 0 {
		m.config.Pipeline.MaxConcurrent = src.Pipeline.MaxConcurrent
	}
	if src.Pipeline.QueuePollInterval != 0 {
		m.config.Pipeline.QueuePollInterval = src.Pipeline.QueuePollInterval
	}
	if src.Pipeline.JobTimeout != 0 {
		m.config.Pipeline.JobTimeout = src.Pipeline.JobTimeout
	}
	if src.Pipeline.QueueRetention != 0 {
		m.config.Pipeline.QueueRetention = src.Pipeline.QueueRetention
	}
	if src.Pipeline.ProgressInterval != 0 {
		m.config.Pipeline.ProgressInterval = src.Pipeline.ProgressInterval
	}
	if src.Pipeline.BatchSize != 0 {
		m.config.Pipeline.BatchSize = src.Pipeline.BatchSize
	}
	if src.Pipeline.CopyThreshold != 0 {
		m.config.Pipeline.CopyThreshold = src.Pipeline.CopyThreshold
	}
	if src.Pipeline.SampleSize != 0 {
		m.config.Pipeline.SampleSize = src.Pipeline.SampleSize
	}
	if src.Pipeline.ResultRetention != 0 {
		m.config.Pipeline.ResultRetention = src.Pipeline.ResultRetention
	}

	if src.Server.Port != 0 {
		m.config.Server.Port = src.Server.Port
	}
	if src.Server.Host != "" {
		m.config.Server.Host = src.Server.Host
	}

	if src.Storage.Database != "" {
		m.config.Storage.Database = src.Storage.Database
	}

	if src.Cache.Enabled {
		m.config.Cache.Enabled = true
	}
	if src.Cache.Address != "" {
		m.config.Cache.Address = src.Cache.Address
	}
	if src.Cache.Password != "" {
		m.config.Cache.Password = src.Cache.Password
	}
	if src.Cache.Database != 0 {
		m.config.Cache.Database = src.Cache.Database
	}
	if src.Cache.TTL != 0 {
		m.config.Cache.TTL = src.Cache.TTL
	}

	if src.Archive.Enabled {
		m.config.Archive.Enabled = true
	}
	if src.Archive.Bucket != "" {
		m.config.Archive.Bucket = src.Archive.Bucket
	}
	if src.Archive.Region != "" {
		m.config.Archive.Region = src.Archive.Region
	}
	if src.Archive.Prefix != "" {
		m.config.Archive.Prefix = src.Archive.Prefix
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("ADLENS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			m.config.Server.Port = port
		}
	}

	if v := os.Getenv("ADLENS_DATABASE"); v != "" {
		m.config.Storage.Database = v
	}

	if v := os.Getenv("ADLENS_UPLOAD_DIR"); v != "" {
		m.config.Upload.UploadDir = v
	}

	if v := os.Getenv("ADLENS_RESULTS_DIR"); v != "" {
		m.config.Upload.ResultsDir = v
	}

	if v := os.Getenv("ADLENS_REDIS_ADDR"); v != "" {
		m.config.Cache.Enabled = true
		m.config.Cache.Address = v
	}
}

// ensureDirs creates necessary directories.
func (m *Manager) ensureDirs() {
	dirs := []string{
		m.config.Upload.UploadDir,
		m.config.Upload.ResultsDir,
		filepath.Dir(m.config.Storage.Database),
	}

	for _, dir := range dirs {
		os.MkdirAll(dir, 0755)
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".adlens")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}
