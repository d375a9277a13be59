package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/unithub/unithub-ble/pkg/protocol"
)

// Collection characteristics carry a JSON array. Timestamps may be RFC 3339 strings or Unix
// milliseconds. Entries without an id are assigned a random UUID so callers can key on it.

type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = timestamp(time.Time{})
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*t = timestamp(v)
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s is neither RFC 3339 nor Unix milliseconds", data)
	}
	*t = timestamp(time.UnixMilli(ms).UTC())
	return nil
}

type alarmEventJSON struct {
	ID        string    `json:"id"`
	Type      Category  `json:"type"`
	Timestamp timestamp `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
}

type logEntryJSON struct {
	ID        string    `json:"id"`
	Timestamp timestamp `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Data      any       `json:"data"`
}

type logFileJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      uint64    `json:"size"`
	CreatedAt timestamp `json:"createdAt"`
	Type      Category  `json:"type"`
}

func malformed(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", protocol.ErrMalformedPayload, fmt.Sprintf(format, a...))
}

func unmarshalArray[T any](data []byte, what string) ([]T, error) {
	data = bytes.TrimRight(data, "\x00")
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, malformed("%s: %s", what, err)
	}
	return out, nil
}

func assignID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// DecodeAlarmEvents parses the alarm history payload. A single entry with an undeclared type or
// severity makes the whole payload malformed.
func DecodeAlarmEvents(data []byte) ([]AlarmEvent, error) {
	raw, err := unmarshalArray[alarmEventJSON](data, "alarm history")
	if err != nil {
		return nil, err
	}
	events := make([]AlarmEvent, 0, len(raw))
	for i, r := range raw {
		if !slices.Contains(alarmCategories, r.Type) {
			return nil, malformed("alarm %d: unknown type '%s'", i, r.Type)
		}
		if !slices.Contains(severities, r.Severity) {
			return nil, malformed("alarm %d: unknown severity '%s'", i, r.Severity)
		}
		events = append(events, AlarmEvent{
			ID:        assignID(r.ID),
			Type:      r.Type,
			Timestamp: time.Time(r.Timestamp),
			Severity:  r.Severity,
			Message:   r.Message,
			Resolved:  r.Resolved,
		})
	}
	return events, nil
}

// DecodeLogEntries parses the current log payload.
func DecodeLogEntries(data []byte) ([]LogEntry, error) {
	raw, err := unmarshalArray[logEntryJSON](data, "log entries")
	if err != nil {
		return nil, err
	}
	entries := make([]LogEntry, 0, len(raw))
	for i, r := range raw {
		if !slices.Contains(logLevels, r.Level) {
			return nil, malformed("log entry %d: unknown level '%s'", i, r.Level)
		}
		if !slices.Contains(allCategories, r.Category) {
			return nil, malformed("log entry %d: unknown category '%s'", i, r.Category)
		}
		entries = append(entries, LogEntry{
			ID:        assignID(r.ID),
			Timestamp: time.Time(r.Timestamp),
			Level:     r.Level,
			Category:  r.Category,
			Message:   r.Message,
			Data:      r.Data,
		})
	}
	return entries, nil
}

// DecodeLogFiles parses the available log file payload.
func DecodeLogFiles(data []byte) ([]LogFile, error) {
	raw, err := unmarshalArray[logFileJSON](data, "log files")
	if err != nil {
		return nil, err
	}
	files := make([]LogFile, 0, len(raw))
	for i, r := range raw {
		if !slices.Contains(allCategories, r.Type) {
			return nil, malformed("log file %d: unknown type '%s'", i, r.Type)
		}
		files = append(files, LogFile{
			ID:        assignID(r.ID),
			Name:      r.Name,
			Size:      r.Size,
			CreatedAt: time.Time(r.CreatedAt),
			Type:      r.Type,
		})
	}
	return files, nil
}

// ParseNetworkStatus converts a decoded enum symbol into a NetworkStatus.
func ParseNetworkStatus(s string) (NetworkStatus, error) {
	v := NetworkStatus(s)
	switch v {
	case NetworkDisconnected, NetworkSearching, NetworkConnected:
		return v, nil
	}
	return "", malformed("unknown network status '%s'", s)
}

// ParseOTAStatus converts a decoded enum symbol into an OTAStatus.
func ParseOTAStatus(s string) (OTAStatus, error) {
	v := OTAStatus(s)
	switch v {
	case OTAIdle, OTARequesting, OTATransferring, OTACompleting, OTACompleted, OTAFailed:
		return v, nil
	}
	return "", malformed("unknown OTA status '%s'", s)
}

// ParseDownloadStatus converts a decoded enum symbol into a DownloadStatus.
func ParseDownloadStatus(s string) (DownloadStatus, error) {
	v := DownloadStatus(s)
	switch v {
	case DownloadIdle, DownloadDownloading, DownloadCompleted, DownloadFailed:
		return v, nil
	}
	return "", malformed("unknown download status '%s'", s)
}
