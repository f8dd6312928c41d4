package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Profile holds the credentials and defaults for one OCI tenant.
// The private key is stored as literal PEM content, never a path.
type Profile struct {
	TenancyID           string `json:"tenancy"`
	UserID              string `json:"user"`
	Fingerprint         string `json:"fingerprint"`
	Region              string `json:"region"`
	KeyContent          string `json:"key_content,omitempty"`
	KeyFile             string `json:"key_file,omitempty"`
	Proxy               string `json:"proxy,omitempty"`
	DefaultSSHPublicKey string `json:"default_ssh_public_key,omitempty"`
	DefaultSubnetOCID   string `json:"default_subnet_ocid,omitempty"`
}

// ProfileFile is the on-disk shape of the profiles document.
// profile_order is a permutation of a subset of the map keys; aliases
// missing from it are appended in case-insensitive lexical order on read.
type ProfileFile struct {
	Profiles map[string]*Profile `json:"profiles"`
	Order    []string            `json:"profile_order"`
}

// TaskType classifies a persisted unit of async work.
type TaskType string

const (
	TaskTypeSnatch TaskType = "snatch"
	TaskTypeAction TaskType = "action"
	TaskTypeCreate TaskType = "create"
)

// TaskStatus is the lifecycle state of a task row.
type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusPaused  TaskStatus = "paused"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailure TaskStatus = "failure"
)

// Terminal reports whether a status is sticky within one run.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailure
}

// CanTransition reports whether moving from s to next is a permitted
// task-row transition. Terminal states never move; paused may only
// resume to running.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning || next == TaskStatusFailure
	case TaskStatusRunning:
		return next == TaskStatusPaused || next.Terminal()
	case TaskStatusPaused:
		return next == TaskStatusRunning || next == TaskStatusFailure
	default:
		return false
	}
}

// Task is one persisted row per async operation.
type Task struct {
	ID           string     `json:"id"`
	Type         TaskType   `json:"type"`
	Name         string     `json:"name"`
	Status       TaskStatus `json:"status"`
	Result       string     `json:"result"`
	CreatedAt    string     `json:"created_at"`
	CompletedAt  string     `json:"completed_at,omitempty"`
	AccountAlias string     `json:"account_alias"`
}

// TimeFormat is the UTC ISO-8601 layout used for task timestamps.
const TimeFormat = "2006-01-02T15:04:05.999999"

// NowUTC returns the current time formatted for task rows.
func NowUTC() string {
	return time.Now().UTC().Format(TimeFormat)
}

// SnatchDetails carries the launch parameters of a snatch or create task.
// Field names are part of the persisted wire format; availabilityDomain
// keeps its historical camel-case spelling.
type SnatchDetails struct {
	AccountAlias       string  `json:"account_alias,omitempty"`
	Shape              string  `json:"shape"`
	OCPUs              float32 `json:"ocpus,omitempty"`
	MemoryInGBs        float32 `json:"memory_in_gbs,omitempty"`
	OS                 string  `json:"os"`
	OSVersion          string  `json:"os_version"`
	AD                 string  `json:"ad,omitempty"`
	BootVolumeSize     int64   `json:"boot_volume_size,omitempty"`
	DisplayNamePrefix  string  `json:"display_name_prefix,omitempty"`
	MinDelay           int     `json:"min_delay,omitempty"`
	MaxDelay           int     `json:"max_delay,omitempty"`
	AvailabilityDomain string  `json:"availabilityDomain,omitempty"`
	AutoBindDomain     bool    `json:"auto_bind_domain,omitempty"`
	StartupScript      string  `json:"startup_script,omitempty"`
	InstancePassword   string  `json:"instance_password,omitempty"`
	InstanceCount      int     `json:"instance_count,omitempty"`
}

// SnatchProgress is the JSON document stored in Task.Result while a
// snatch is running or paused. RunID names the worker that currently
// owns the row; a worker whose in-memory run id disagrees with the
// persisted one must exit.
type SnatchProgress struct {
	RunID        string        `json:"run_id"`
	StartTime    string        `json:"start_time"`
	AttemptCount int           `json:"attempt_count"`
	LastMessage  string        `json:"last_message"`
	Details      SnatchDetails `json:"details"`
}

// TaskResult is the tagged variant behind Task.Result: either a plain
// human-readable message or an encoded SnatchProgress. The on-disk
// representation is the raw string either way.
type TaskResult struct {
	Message  string
	Progress *SnatchProgress
}

// ParseTaskResult decodes a stored result string. Strings that are not
// a JSON progress document are returned as plain messages.
func ParseTaskResult(raw string) TaskResult {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var p SnatchProgress
		// A paused row has its run_id cleared, so start_time is the
		// discriminator that survives the whole lifecycle.
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil && (p.RunID != "" || p.StartTime != "") {
			return TaskResult{Progress: &p}
		}
	}
	return TaskResult{Message: raw}
}

// Encode renders the variant back to the stored string form.
func (r TaskResult) Encode() (string, error) {
	if r.Progress == nil {
		return r.Message, nil
	}
	data, err := json.Marshal(r.Progress)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TelegramSettings is the singleton Telegram notification config.
type TelegramSettings struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// CloudflareSettings is the singleton Cloudflare DNS config.
type CloudflareSettings struct {
	APIToken string `json:"api_token"`
	ZoneID   string `json:"zone_id"`
	Domain   string `json:"domain"`
}

// DefaultSSHKey is the global fallback public key for new profiles.
type DefaultSSHKey struct {
	Key string `json:"key"`
}

// InstanceSummary is the derived per-instance row returned by the
// instance listing endpoints.
type InstanceSummary struct {
	DisplayName      string  `json:"display_name"`
	ID               string  `json:"id"`
	LifecycleState   string  `json:"lifecycle_state"`
	Shape            string  `json:"shape"`
	TimeCreated      string  `json:"time_created,omitempty"`
	OCPUs            float32 `json:"ocpus,omitempty"`
	MemoryInGBs      float32 `json:"memory_in_gbs,omitempty"`
	PublicIP         string  `json:"public_ip"`
	IPv6Address      string  `json:"ipv6_address"`
	BootVolumeSizeGB int64   `json:"boot_volume_size_gb,omitempty"`
	VnicID           string  `json:"vnic_id,omitempty"`
	SubnetID         string  `json:"subnet_id,omitempty"`
}
