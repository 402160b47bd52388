package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/avs/internal/types"
)

var (
	ErrUnknownResource = errors.New("unknown resource")
	ErrNoSnapshot      = errors.New("no snapshot available")
)

// Snapshot is the state of a set of resources at one point in time.
type Snapshot struct {
	Resources map[types.ResourceKey]types.Resource
	Timestamp time.Time
}

// YieldIndices returns each resource's yield index, the entry point of a realized-yield measurement.
func (s Snapshot) YieldIndices() map[types.ResourceKey]math.Int {
	indices := make(map[types.ResourceKey]math.Int, len(s.Resources))
	for key, resource := range s.Resources {
		indices[key] = types.IntOrZero(resource.YieldIndex)
	}
	return indices
}

// Challenge turns the snapshot into the allocation problem sent to participants.
func (s Snapshot) Challenge(totalAssets sdk.Coin) types.Challenge {
	resources := make(map[types.ResourceKey]types.Resource, len(s.Resources))
	for key, resource := range s.Resources {
		resources[key] = resource
	}
	return types.Challenge{TotalAssets: totalAssets, Resources: resources}
}

// SnapshotProvider synchronizes resource state before and after a scoring round.
// This interface abstracts away where the state comes from (a chain, a simulation, a file),
// allowing the validator to run against different sources.
type SnapshotProvider interface {
	// Sync returns the current state of the given resources. An empty keys slice means every
	// resource the provider knows about.
	Sync(ctx context.Context, keys []types.ResourceKey) (Snapshot, error)
}

// StaticProvider serves pre-recorded snapshots in order and then keeps returning the last one.
// It is used for offline scoring and tests.
type StaticProvider struct {
	mu        sync.Mutex
	snapshots []Snapshot
	next      int
}

// NewStaticProvider creates a provider replaying snapshots in order.
func NewStaticProvider(snapshots ...Snapshot) *StaticProvider {
	return &StaticProvider{snapshots: snapshots}
}

// Sync implements SnapshotProvider.
func (p *StaticProvider) Sync(ctx context.Context, keys []types.ResourceKey) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.snapshots) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	current := p.snapshots[p.next]
	if p.next < len(p.snapshots)-1 {
		p.next++
	}

	return Select(current, keys)
}

// Select restricts a snapshot to keys. Every key must be present.
func Select(snapshot Snapshot, keys []types.ResourceKey) (Snapshot, error) {
	if len(keys) == 0 {
		return snapshot, nil
	}
	selected := Snapshot{
		Resources: make(map[types.ResourceKey]types.Resource, len(keys)),
		Timestamp: snapshot.Timestamp,
	}
	for _, key := range keys {
		resource, ok := snapshot.Resources[key]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownResource, key)
		}
		selected.Resources[key] = resource
	}
	return selected, nil
}
