// Copyright 2026 the Jarvis authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package broker

import "sync"

// capabilityTable maps capability names to the ordered provider names that
// advertise them. Two tables coexist: active entries are visible to the
// broadcaster, dormant entries (night agents) are hidden until activated.
// Insertion order defines broadcast order.
type capabilityTable struct {
	mu      sync.RWMutex
	active  map[string][]string
	dormant map[string][]string
}

func newCapabilityTable() *capabilityTable {
	return &capabilityTable{
		active:  make(map[string][]string),
		dormant: make(map[string][]string),
	}
}

// AddActive indexes the provider under each capability in the active table.
// Adding is idempotent.
func (t *capabilityTable) AddActive(provider string, capabilities []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range capabilities {
		t.active[c] = appendUnique(t.active[c], provider)
	}
}

// AddDormant indexes the provider in the dormant table instead.
func (t *capabilityTable) AddDormant(provider string, capabilities []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range capabilities {
		t.dormant[c] = appendUnique(t.dormant[c], provider)
	}
}

// Activate moves the provider's entries from the dormant to the active table.
// Idempotent: already-active entries stay put.
func (t *capabilityTable) Activate(provider string, capabilities []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range capabilities {
		t.dormant[c] = removeName(t.dormant[c], provider)
		if len(t.dormant[c]) == 0 {
			delete(t.dormant, c)
		}
		t.active[c] = appendUnique(t.active[c], provider)
	}
}

// Deactivate moves the provider's entries from the active to the dormant
// table, restoring the exact pre-activation state.
func (t *capabilityTable) Deactivate(provider string, capabilities []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range capabilities {
		t.active[c] = removeName(t.active[c], provider)
		if len(t.active[c]) == 0 {
			delete(t.active, c)
		}
		t.dormant[c] = appendUnique(t.dormant[c], provider)
	}
}

// Providers returns a snapshot copy of the active providers for a capability.
func (t *capabilityTable) Providers(capability string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.active[capability]...)
}

// DormantProviders returns a snapshot copy of the dormant providers for a
// capability. Used by tests and diagnostics.
func (t *capabilityTable) DormantProviders(capability string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.dormant[capability]...)
}

// ActiveCapabilities returns the capability names currently visible to the
// broadcaster.
func (t *capabilityTable) ActiveCapabilities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.active))
	for c := range t.active {
		names = append(names, c)
	}
	return names
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
