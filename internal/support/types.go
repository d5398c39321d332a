// Package support collects scrubbed configuration, recent log files and
// host details into an archive for troubleshooting reports.
package support

import (
	"time"
)

// SupportDump is the metadata record of one collected report. Log files
// travel as raw entries next to it in the archive, so the struct itself
// stays small.
type SupportDump struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	SystemID   string         `json:"system_id"`
	Version    string         `json:"version"`
	Config     map[string]any `json:"config,omitempty"`
	SystemInfo SystemInfo     `json:"system_info"`
}

// SystemInfo captures the host environment the report was taken on.
type SystemInfo struct {
	OS           string     `json:"os"`
	Architecture string     `json:"architecture"`
	GoVersion    string     `json:"go_version"`
	CPUCount     int        `json:"cpu_count"`
	MemoryMB     uint64     `json:"memory_mb"`
	Disks        []DiskInfo `json:"disks,omitempty"`
	InContainer  bool       `json:"in_container"`
}

// DiskInfo is the usage of one mounted filesystem.
type DiskInfo struct {
	Mountpoint string  `json:"mountpoint"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	UsagePerc  float64 `json:"usage_percent"`
}

// CollectorOptions configures what data a support dump includes.
type CollectorOptions struct {
	IncludeLogs       bool          `json:"include_logs"`
	IncludeConfig     bool          `json:"include_config"`
	IncludeSystemInfo bool          `json:"include_system_info"`
	LogDuration       time.Duration `json:"log_duration"`
	MaxLogSize        int64         `json:"max_log_size"`
	ScrubSensitive    bool          `json:"scrub_sensitive"`
}

// DefaultCollectorOptions returns the options used when the caller does not
// specify any: everything included, a two week log window, 20MB of logs and
// sensitive value scrubbing enabled.
func DefaultCollectorOptions() CollectorOptions {
	return CollectorOptions{
		IncludeLogs:       true,
		IncludeConfig:     true,
		IncludeSystemInfo: true,
		LogDuration:       14 * 24 * time.Hour,
		MaxLogSize:        20 * 1024 * 1024,
		ScrubSensitive:    true,
	}
}
