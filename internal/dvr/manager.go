// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dvr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

var ErrRuleNotFound = errors.New("rule not found")

// RuleStore persists recording rules.
type RuleStore interface {
	Rules(ctx context.Context) ([]Rule, error)
	PutRule(ctx context.Context, r Rule) error
	DeleteRule(ctx context.Context, id string) error
}

// Manager serialises rule edits on top of a RuleStore and moves rule sets in
// and out of JSON files.
type Manager struct {
	mu    sync.Mutex
	store RuleStore
}

func NewManager(store RuleStore) *Manager {
	return &Manager{store: store}
}

// GetRules returns all rules in evaluation order.
func (m *Manager) GetRules(ctx context.Context) ([]Rule, error) {
	rules, err := m.store.Rules(ctx)
	if err != nil {
		return nil, err
	}
	SortRules(rules)
	return rules, nil
}

func (m *Manager) GetRule(ctx context.Context, id string) (Rule, error) {
	rules, err := m.store.Rules(ctx)
	if err != nil {
		return Rule{}, err
	}
	for _, r := range rules {
		if r.ID == id {
			return r, nil
		}
	}
	return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}

// AddRule stores r, assigning an id when it has none.
func (m *Manager) AddRule(ctx context.Context, r Rule) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if err := m.store.PutRule(ctx, r); err != nil {
		return "", fmt.Errorf("failed to save rule: %w", err)
	}
	return r.ID, nil
}

// UpdateRule replaces an existing rule; the id in upd is ignored.
func (m *Manager) UpdateRule(ctx context.Context, id string, upd Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.GetRule(ctx, id); err != nil {
		return err
	}
	upd.ID = id
	if err := m.store.PutRule(ctx, upd); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

func (m *Manager) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.GetRule(ctx, id); err != nil {
		return err
	}
	if err := m.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// ImportFile loads a JSON array of rules and stores each of them. The file is
// validated as a whole before anything is written.
func (m *Manager) ImportFile(ctx context.Context, path string) (int, error) {
	// #nosec G304 -- rule files are provided by the operator via CLI
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("read rules file: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return 0, fmt.Errorf("decode rules file: %w", err)
	}

	seen := make(map[string]bool, len(rules))
	for i := range rules {
		if rules[i].ID == "" {
			rules[i].ID = uuid.New().String()
		}
		if seen[rules[i].ID] {
			return 0, fmt.Errorf("rules file: duplicate rule id %s", rules[i].ID)
		}
		seen[rules[i].ID] = true
		if err := rules[i].Validate(); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rules {
		if err := m.store.PutRule(ctx, r); err != nil {
			return 0, fmt.Errorf("failed to save rule: %w", err)
		}
	}
	return len(rules), nil
}

// ExportFile writes all rules as a JSON array, replacing path atomically.
func (m *Manager) ExportFile(ctx context.Context, path string) error {
	rules, err := m.GetRules(ctx)
	if err != nil {
		return err
	}
	if rules == nil {
		rules = []Rule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0600)
}
