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
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// WakeUpProtocol is the reserved protocol name that passes the night-mode
// gate.
const WakeUpProtocol = "wake_up"

// CapabilitySwitcher is the slice of the broker night-mode transitions need.
// *broker.MessageBroker satisfies it.
type CapabilitySwitcher interface {
	ActivateCapabilities(providerName string)
	DeactivateCapabilities(providerName string)
}

// NightMode gates the orchestrator behind the wake_up protocol and swaps
// night-agent capabilities in and out of the broker's active table. Optional
// cron expressions drive the same transitions on a schedule.
type NightMode struct {
	bus         CapabilitySwitcher
	nightAgents []string
	logger      *zap.Logger

	enabled atomic.Bool
	cron    *cron.Cron
}

// NewNightMode creates the night-mode controller. nightAgents are the
// providers whose capabilities are dormant by day and active by night.
func NewNightMode(bus CapabilitySwitcher, nightAgents []string, logger *zap.Logger) *NightMode {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NightMode{
		bus:         bus,
		nightAgents: append([]string(nil), nightAgents...),
		logger:      logger,
	}
}

// Enabled reports whether night mode is active.
func (n *NightMode) Enabled() bool {
	return n.enabled.Load()
}

// Enable turns night mode on: night-agent capabilities become visible to the
// broadcaster. Idempotent.
func (n *NightMode) Enable() {
	if !n.enabled.CompareAndSwap(false, true) {
		return
	}
	for _, agent := range n.nightAgents {
		n.bus.ActivateCapabilities(agent)
	}
	n.logger.Info("night mode enabled", zap.Strings("night_agents", n.nightAgents))
}

// Disable turns night mode off and returns night-agent capabilities to the
// dormant table. Idempotent.
func (n *NightMode) Disable() {
	if !n.enabled.CompareAndSwap(true, false) {
		return
	}
	for _, agent := range n.nightAgents {
		n.bus.DeactivateCapabilities(agent)
	}
	n.logger.Info("night mode disabled")
}

// Schedule installs cron expressions (standard 5-field format) that enter and
// exit night mode automatically. Either expression may be empty to skip that
// transition. Call StopSchedule to tear the schedule down.
func (n *NightMode) Schedule(enterExpr, exitExpr string) error {
	if n.cron != nil {
		return fmt.Errorf("night-mode schedule already installed")
	}
	c := cron.New()
	if enterExpr != "" {
		if _, err := c.AddFunc(enterExpr, n.Enable); err != nil {
			return fmt.Errorf("bad night-mode enter expression %q: %w", enterExpr, err)
		}
	}
	if exitExpr != "" {
		if _, err := c.AddFunc(exitExpr, n.Disable); err != nil {
			return fmt.Errorf("bad night-mode exit expression %q: %w", exitExpr, err)
		}
	}
	c.Start()
	n.cron = c
	n.logger.Info("night-mode schedule installed",
		zap.String("enter", enterExpr),
		zap.String("exit", exitExpr))
	return nil
}

// StopSchedule stops the cron schedule, if one is running.
func (n *NightMode) StopSchedule() {
	if n.cron != nil {
		n.cron.Stop()
		n.cron = nil
	}
}
