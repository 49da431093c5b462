// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package bot

import (
	"sort"
	"sync"
)

// MemoryBrain is an in-memory user directory.
// It is safe for concurrent use.
type MemoryBrain struct {
	mu    sync.Mutex
	users map[string]User
}

// NewMemoryBrain returns an empty brain.
func NewMemoryBrain() *MemoryBrain {
	return &MemoryBrain{users: make(map[string]User)}
}

// UserForID returns the user stored under id after merging attrs into it,
// creating the user if it does not exist.
// New users are named after their ID unless attrs sets a name.
func (b *MemoryBrain) UserForID(id string, attrs User) User {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		u = User{ID: id, Name: id}
	}
	u = u.Merge(attrs)
	b.users[id] = u
	return u
}

// Lookup returns the user stored under id.
func (b *MemoryBrain) Lookup(id string) (User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	return u, ok
}

// Users returns all known users sorted by ID.
func (b *MemoryBrain) Users() []User {
	b.mu.Lock()
	defer b.mu.Unlock()
	users := make([]User, 0, len(b.users))
	for _, u := range b.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users
}
