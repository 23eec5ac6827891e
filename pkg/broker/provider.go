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

import (
	"context"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// Provider is a capability provider registered with the broker. The broker
// indexes providers by name and never owns them; ownership stays with the
// caller, which breaks the provider↔broker reference cycle.
type Provider interface {
	// Name returns the provider's stable name.
	Name() string

	// Capabilities returns the capability names this provider advertises.
	Capabilities() []string

	// ReceiveMessage handles a message delivered by the broker. Errors are
	// logged by the broker; they never unwind the worker.
	ReceiveMessage(ctx context.Context, msg *types.Message) error
}

// ProviderFunc is an entry in a provider's in-process function table. The
// protocol executor may call these directly, bypassing the queue for
// deterministic one-party calls.
type ProviderFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// FunctionProvider is a Provider that additionally exposes an in-process
// function table for executor fast paths.
type FunctionProvider interface {
	Provider

	// Functions returns the function table, keyed by function name.
	Functions() map[string]ProviderFunc
}

// BrokerAware providers receive a back-reference to the broker at
// registration time so they can send responses through the broker helpers.
type BrokerAware interface {
	AttachBroker(b *MessageBroker)
}
