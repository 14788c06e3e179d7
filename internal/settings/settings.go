// Package settings persists lecturer preferences and the UI theme.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"edutend/internal/store"
)

// Lecturer holds per-lecturer defaults. DefaultTimerMinutes, when
// positive, is applied automatically after each session creation.
type Lecturer struct {
	DefaultTimerMinutes int `json:"defaultQrMinutes"`
}

// Store reads and writes settings in the shared KV substrate.
type Store struct {
	kv store.KV
}

// NewStore creates a settings store over kv.
func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

// Lecturer returns the stored preferences; missing or corrupt data
// degrades to zero-value defaults.
func (s *Store) Lecturer(ctx context.Context) Lecturer {
	raw, err := s.kv.Get(ctx, store.KeyLecturerSettings)
	if err != nil || len(raw) == 0 {
		return Lecturer{}
	}
	var prefs Lecturer
	if err := json.Unmarshal(raw, &prefs); err != nil {
		log.Printf("settings: corrupt lecturer settings, using defaults: %v", err)
		return Lecturer{}
	}
	if prefs.DefaultTimerMinutes < 0 {
		prefs.DefaultTimerMinutes = 0
	}
	return prefs
}

// SetLecturer persists the preferences.
func (s *Store) SetLecturer(ctx context.Context, prefs Lecturer) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyLecturerSettings, raw); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// Theme returns the stored UI theme preference, or "" when unset.
func (s *Store) Theme(ctx context.Context) string {
	raw, err := s.kv.Get(ctx, store.KeyTheme)
	if err != nil || len(raw) == 0 {
		return ""
	}
	var theme string
	if err := json.Unmarshal(raw, &theme); err != nil {
		return ""
	}
	return theme
}

// SetTheme persists the UI theme preference.
func (s *Store) SetTheme(ctx context.Context, theme string) error {
	raw, err := json.Marshal(theme)
	if err != nil {
		return fmt.Errorf("marshal theme: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyTheme, raw); err != nil {
		return fmt.Errorf("persist theme: %w", err)
	}
	return nil
}
