// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package permissions maps roles to static capability sets.
//
// Permissions here are a plain lookup, not a trust or identity system.
// Role sets can be loaded from a YAML file and hot-reloaded when the file
// changes.
package permissions

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/JuanCS-Dev/vertice-code/services/governor"
)

// Registry is an in-memory role to capability-set lookup.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	roles map[string]map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		roles: make(map[string]map[string]bool),
	}
}

// Grant adds a capability to a role.
func (r *Registry) Grant(roleID, permission string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roles[roleID] == nil {
		r.roles[roleID] = make(map[string]bool)
	}
	r.roles[roleID][permission] = true
}

// Revoke removes a capability from a role.
func (r *Registry) Revoke(roleID, permission string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles[roleID], permission)
}

// Has reports whether the role holds the capability.
func (r *Registry) Has(roleID, permission string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[roleID][permission]
}

// Enforce fails with governor.ErrPermissionDenied when the role lacks the
// capability.
func (r *Registry) Enforce(roleID, permission string) error {
	if !r.Has(roleID, permission) {
		return fmt.Errorf("role %q lacks %q: %w", roleID, permission, governor.ErrPermissionDenied)
	}
	return nil
}

// roleFile is the YAML shape of a permissions file:
//
//	roles:
//	  policy_evaluator:
//	    - action:evaluate
//	  counsel_evaluator:
//	    - counsel:provide
type roleFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadFile replaces the registry contents from a YAML file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read permissions file: %w", err)
	}

	var file roleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse permissions file: %w", err)
	}

	roles := make(map[string]map[string]bool, len(file.Roles))
	for role, perms := range file.Roles {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		roles[role] = set
	}

	r.mu.Lock()
	r.roles = roles
	r.mu.Unlock()

	return nil
}

// Watch reloads the registry whenever the permissions file changes.
//
// Description:
//
//	Starts an fsnotify watcher on the file. Reload failures keep the
//	previous role sets and are logged; a broken edit never empties the
//	registry. The watcher stops when the returned closer is called.
//
// Inputs:
//
//	path - The permissions YAML file to watch.
//
// Outputs:
//
//	func() error - Closer that stops the watcher. Must be called.
//	error - Non-nil if the watcher cannot be created.
func (r *Registry) Watch(path string) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadFile(path); err != nil {
					slog.Warn("Permissions reload failed, keeping previous roles",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
					continue
				}
				slog.Info("Permissions reloaded", slog.String("path", path))
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
