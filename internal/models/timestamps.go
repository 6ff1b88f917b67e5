package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Older snapshots stored timestamps as epoch milliseconds; newer ones as RFC 3339
// strings. Both decode into time.Time.

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return t, nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// UnmarshalJSON accepts created_at as either an ISO string or epoch milliseconds.
func (t *Turn) UnmarshalJSON(data []byte) error {
	type alias Turn
	aux := struct {
		*alias
		CreatedAt json.RawMessage `json:"created_at"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.CreatedAt)
	if err != nil {
		return err
	}
	t.CreatedAt = ts
	return nil
}

// UnmarshalJSON accepts last_modified as either an ISO string or epoch milliseconds.
func (d *Document) UnmarshalJSON(data []byte) error {
	type alias Document
	aux := struct {
		*alias
		LastModified json.RawMessage `json:"last_modified"`
	}{alias: (*alias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.LastModified)
	if err != nil {
		return err
	}
	d.LastModified = ts
	return nil
}

// UnmarshalJSON accepts created_at as either an ISO string or epoch milliseconds.
func (c *Citation) UnmarshalJSON(data []byte) error {
	type alias Citation
	aux := struct {
		*alias
		CreatedAt json.RawMessage `json:"created_at"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.CreatedAt)
	if err != nil {
		return err
	}
	c.CreatedAt = ts
	return nil
}

// UnmarshalJSON accepts resolved_at as either an ISO string or epoch milliseconds.
func (c *Conflict) UnmarshalJSON(data []byte) error {
	type alias Conflict
	aux := struct {
		*alias
		ResolvedAt json.RawMessage `json:"resolved_at"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.ResolvedAt)
	if err != nil {
		return err
	}
	c.ResolvedAt = nil
	if !ts.IsZero() {
		c.ResolvedAt = &ts
	}
	return nil
}

// UnmarshalJSON accepts saved_at as either an ISO string or epoch milliseconds.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type alias Snapshot
	aux := struct {
		*alias
		SavedAt json.RawMessage `json:"saved_at"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.SavedAt)
	if err != nil {
		return err
	}
	s.SavedAt = ts
	return nil
}
