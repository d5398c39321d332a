package support

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"gopkg.in/yaml.v3"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// Collector gathers support data for troubleshooting reports.
type Collector struct {
	configPath    string
	dataPath      string
	systemID      string
	version       string
	sensitiveKeys []string
}

// NewCollector creates a support data collector. Empty paths default to
// the working directory.
func NewCollector(configPath, dataPath, systemID, version string) *Collector {
	if configPath == "" {
		configPath = "."
	}
	if dataPath == "" {
		dataPath = "."
	}

	return &Collector{
		configPath:    configPath,
		dataPath:      dataPath,
		systemID:      systemID,
		version:       version,
		sensitiveKeys: defaultSensitiveKeys(),
	}
}

// defaultSensitiveKeys lists the configuration key fragments whose values
// are redacted before a config snapshot leaves the machine. Matching is
// case-insensitive on substrings.
func defaultSensitiveKeys() []string {
	return []string{
		"password", "token", "secret", "key", "apikey", "api_key",
		"dsn", "username", "broker", "topic", "urls", "webhook", "bearer",
	}
}

// Collect gathers support data based on the provided options.
func (c *Collector) Collect(ctx context.Context, opts CollectorOptions) (*SupportDump, error) {
	if !opts.IncludeLogs && !opts.IncludeConfig && !opts.IncludeSystemInfo {
		return nil, errors.Newf("at least one data type must be included in support dump").
			Component("support").
			Category(errors.CategoryValidation).
			Context("operation", "validate_collect_options").
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dump := &SupportDump{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		SystemID:  c.systemID,
		Version:   c.version,
	}

	if opts.IncludeSystemInfo {
		dump.SystemInfo = c.collectSystemInfo()
	}

	if opts.IncludeConfig {
		config, err := c.collectConfig(opts.ScrubSensitive)
		if err != nil {
			return nil, errors.New(err).
				Component("support").
				Category(errors.CategoryConfiguration).
				Context("operation", "collect_config").
				Context("scrub_sensitive", opts.ScrubSensitive).
				Build()
		}
		dump.Config = config
	}

	return dump, nil
}

// CreateArchive builds a zip archive from the dump metadata and, when log
// collection is enabled, the raw log files found under the search paths.
func (c *Collector) CreateArchive(ctx context.Context, dump *SupportDump, opts CollectorOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	metadataFile, err := w.Create("metadata.json")
	if err != nil {
		return nil, archiveError(err, "create_metadata_file")
	}
	if err := json.NewEncoder(metadataFile).Encode(dump); err != nil {
		return nil, archiveError(err, "write_metadata")
	}

	if opts.IncludeConfig && dump.Config != nil {
		configFile, err := w.Create("config.json")
		if err != nil {
			return nil, archiveError(err, "create_config_file")
		}
		if err := json.NewEncoder(configFile).Encode(dump.Config); err != nil {
			return nil, archiveError(err, "write_config")
		}
	}

	if opts.IncludeSystemInfo {
		sysInfoFile, err := w.Create("system_info.json")
		if err != nil {
			return nil, archiveError(err, "create_system_info_file")
		}
		if err := json.NewEncoder(sysInfoFile).Encode(dump.SystemInfo); err != nil {
			return nil, archiveError(err, "write_system_info")
		}
	}

	if opts.IncludeLogs {
		lfc := &logFileCollector{
			cutoffTime: time.Now().Add(-opts.LogDuration),
			maxSize:    opts.MaxLogSize,
		}
		for _, dir := range c.getUniqueLogPaths() {
			lfc.collectFromDir(w, dir)
		}
		if lfc.filesAdded == 0 {
			lfc.addNoLogsNote(w)
		}
	}

	if err := w.Close(); err != nil {
		return nil, archiveError(err, "close_archive")
	}

	return buf.Bytes(), nil
}

func archiveError(err error, operation string) error {
	return errors.New(err).
		Component("support").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Build()
}

// collectSystemInfo gathers host details. Probe failures leave the
// corresponding fields empty rather than failing the whole report.
func (c *Collector) collectSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		CPUCount:     runtime.NumCPU(),
		InContainer:  conf.RunningInContainer(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryMB = vm.Total / 1024 / 1024
	}

	seen := make(map[string]struct{})
	for _, path := range []string{"/", c.dataPath} {
		usage, err := disk.Usage(path)
		if err != nil {
			continue
		}
		if _, dup := seen[usage.Path]; dup {
			continue
		}
		seen[usage.Path] = struct{}{}
		info.Disks = append(info.Disks, DiskInfo{
			Mountpoint: usage.Path,
			Total:      usage.Total,
			Used:       usage.Used,
			UsagePerc:  usage.UsedPercent,
		})
	}

	return info
}

// collectConfig loads the active configuration file and optionally scrubs
// sensitive values.
func (c *Collector) collectConfig(scrub bool) (map[string]any, error) {
	configPath := filepath.Join(c.configPath, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.New(err).
			Component("support").
			Category(errors.CategoryFileIO).
			Context("operation", "read_config_file").
			Context("config_path", configPath).
			Build()
	}

	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.New(err).
			Component("support").
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_config_yaml").
			Context("file_size", len(data)).
			Build()
	}

	if scrub {
		config = c.scrubConfig(config)
	}

	return config, nil
}

// scrubConfig redacts sensitive values from a configuration snapshot.
func (c *Collector) scrubConfig(config map[string]any) map[string]any {
	scrubbed := make(map[string]any)
	for k, v := range config {
		scrubbed[k] = c.scrubValue(k, v)
	}
	return scrubbed
}

// scrubValue replaces the whole value of a sensitive key and recurses into
// nested maps and slices otherwise.
func (c *Collector) scrubValue(key string, value any) any {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range c.sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return "[REDACTED]"
		}
	}

	switch v := value.(type) {
	case map[string]any:
		scrubbed := make(map[string]any)
		for k, val := range v {
			scrubbed[k] = c.scrubValue(k, val)
		}
		return scrubbed
	case []any:
		scrubbed := make([]any, len(v))
		for i, item := range v {
			scrubbed[i] = c.scrubValue(key, item)
		}
		return scrubbed
	default:
		return value
	}
}

// getLogSearchPaths returns the directories checked for log files: the
// working directory logs, the data directory logs and the config
// directory logs.
func (c *Collector) getLogSearchPaths() []string {
	return []string{
		"logs",
		filepath.Join(c.dataPath, "logs"),
		filepath.Join(c.configPath, "logs"),
	}
}

// getUniqueLogPaths deduplicates the search paths by absolute path so a
// data directory that equals the working directory is only walked once.
func (c *Collector) getUniqueLogPaths() []string {
	seen := make(map[string]struct{})
	var unique []string
	for _, path := range c.getLogSearchPaths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		unique = append(unique, path)
	}
	return unique
}

// logFileCollector streams matching log files into the archive while
// enforcing the recency window and the total size budget.
type logFileCollector struct {
	cutoffTime time.Time
	maxSize    int64
	totalSize  int64
	filesAdded int
}

// isLogFile reports whether a filename looks like a log file. Rotated
// names such as imagefetch-2025-06-25T15-36-29.209.log count too.
func (lfc *logFileCollector) isLogFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), "log")
}

// isFileWithinTimeRange reports whether the file was modified at or after
// the cutoff time.
func (lfc *logFileCollector) isFileWithinTimeRange(info os.FileInfo) bool {
	return !info.ModTime().Before(lfc.cutoffTime)
}

// canAddFile reports whether adding a file of the given size stays within
// the total size budget.
func (lfc *logFileCollector) canAddFile(fileSize int64) bool {
	return lfc.totalSize+fileSize <= lfc.maxSize
}

// collectFromDir adds every eligible log file in dir to the archive.
// Unreadable directories and files are skipped silently; a missing logs
// directory is the common case on fresh installs.
func (lfc *logFileCollector) collectFromDir(w *zip.Writer, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !lfc.isLogFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !lfc.isFileWithinTimeRange(info) {
			continue
		}
		if !lfc.canAddFile(info.Size()) {
			return
		}
		if err := lfc.addFile(w, filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
	}
}

// addFile copies one log file into the archive under logs/.
func (lfc *logFileCollector) addFile(w *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := w.Create("logs/" + filepath.Base(path))
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, src)
	if err != nil {
		return err
	}

	lfc.totalSize += n
	lfc.filesAdded++
	return nil
}

// addNoLogsNote writes a placeholder so the archive explains why its logs
// directory is empty.
func (lfc *logFileCollector) addNoLogsNote(w *zip.Writer) {
	f, err := w.Create("logs/README.txt")
	if err != nil {
		return
	}
	_, _ = io.WriteString(f, "No log files were found or all logs were older than the specified duration.")
}
