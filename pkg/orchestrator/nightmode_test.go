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
package orchestrator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeSwitcher struct {
	mu          sync.Mutex
	activated   []string
	deactivated []string
}

func (f *fakeSwitcher) ActivateCapabilities(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, name)
}

func (f *fakeSwitcher) DeactivateCapabilities(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, name)
}

func TestNightModeEnableDisable(t *testing.T) {
	sw := &fakeSwitcher{}
	n := NewNightMode(sw, []string{"NightGuard", "Sentry"}, zaptest.NewLogger(t))
	assert.False(t, n.Enabled())

	n.Enable()
	assert.True(t, n.Enabled())
	assert.Equal(t, []string{"NightGuard", "Sentry"}, sw.activated)

	n.Disable()
	assert.False(t, n.Enabled())
	assert.Equal(t, []string{"NightGuard", "Sentry"}, sw.deactivated)
}

func TestNightModeEnableIsIdempotent(t *testing.T) {
	sw := &fakeSwitcher{}
	n := NewNightMode(sw, []string{"NightGuard"}, zaptest.NewLogger(t))

	n.Enable()
	n.Enable()
	assert.Len(t, sw.activated, 1)

	n.Disable()
	n.Disable()
	assert.Len(t, sw.deactivated, 1)
}

func TestNightModeScheduleRejectsBadExpression(t *testing.T) {
	n := NewNightMode(&fakeSwitcher{}, nil, zaptest.NewLogger(t))
	assert.Error(t, n.Schedule("not a cron line", ""))
}

func TestNightModeSchedule(t *testing.T) {
	n := NewNightMode(&fakeSwitcher{}, nil, zaptest.NewLogger(t))
	assert.NoError(t, n.Schedule("0 23 * * *", "0 7 * * *"))
	assert.Error(t, n.Schedule("0 23 * * *", ""), "double install must fail")
	n.StopSchedule()
	assert.NoError(t, n.Schedule("0 23 * * *", "0 7 * * *"))
	n.StopSchedule()
}
