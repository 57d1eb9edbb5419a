// Package propagation implements the energy cascade: a BFS walk outward
// from a reviewed node that spreads an energy delta across dependency and
// knowledge edges, bounded by depth and a minimum-delta cutoff.
package propagation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/iqrahapp/iqrah-core/internal/content"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/model"
)

// ErrDepthExceeded is logged as a warning, never returned to callers, per
// spec.md §7's downgrade of propagation errors to warnings in production.
var ErrDepthExceeded = errors.New("propagation: depth exceeded")

// reverseDampingFactor dampens energy flowing against the reinforcing
// direction of a dependency edge (verse -> word-instance).
const reverseDampingFactor = 0.5

// Config holds the propagator's tunables.
type Config struct {
	DefaultDepth int
	MinDelta     float64
}

// DefaultConfig matches spec.md §4.4's defaults.
func DefaultConfig() Config {
	return Config{DefaultDepth: 3, MinDelta: 0.02}
}

// Propagator spreads a source node's energy delta across the content
// graph and records the result through the memory repository.
type Propagator struct {
	content *content.Store
	cfg     Config
}

// New constructs a Propagator over a content store.
func New(store *content.Store, cfg Config) *Propagator {
	return &Propagator{content: store, cfg: cfg}
}

type wavefront struct {
	node  model.NodeID
	delta float64
	depth int
}

// Propagate runs one BFS cascade from source with delta sourceDelta and
// writes the resulting propagation_events/propagation_details rows plus
// every touched node's new energy, all inside tx. The caller owns the
// transaction (typically the session engine's per-grade-submission tx);
// Propagate never commits or rolls back.
func (p *Propagator) Propagate(ctx context.Context, tx *sql.Tx, userID string, ev model.PropagationEvent, sourceDelta float64, currentEnergy func(model.NodeID) (float64, error)) (model.PropagationEvent, error) {
	timer := logging.StartTimer(logging.CategoryPropagation, "Propagate")
	defer timer.Stop()

	seed := seedFrom(userID, ev.SessionID, ev.ID)
	rng := rand.New(rand.NewSource(seed))

	visited := map[model.NodeID]bool{ev.SourceKey: true}
	queue := []wavefront{{node: ev.SourceKey, delta: sourceDelta, depth: 0}}

	var details []model.PropagationDetail

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return ev, ctx.Err()
		}
		wf := queue[0]
		queue = queue[1:]

		if wf.depth >= p.cfg.DefaultDepth {
			logging.Get(logging.CategoryPropagation).Warn("%v at node %d depth %d", ErrDepthExceeded, wf.node, wf.depth)
			continue
		}

		edges, err := p.content.GetEdgesFrom(wf.node)
		if err != nil {
			return ev, fmt.Errorf("propagation: get edges from %d: %w", wf.node, err)
		}

		for _, e := range edges {
			if visited[e.To] {
				continue // first wavefront wins; later arrivals are dropped
			}

			tau := sampleTransmission(rng, e.Distribution, float64(e.Weight))
			direction, err := p.directionFactor(e)
			if err != nil {
				return ev, fmt.Errorf("propagation: direction factor: %w", err)
			}
			delta := wf.delta * tau * direction

			if math.Abs(delta) < p.cfg.MinDelta {
				continue
			}

			energy, err := currentEnergy(e.To)
			if err != nil {
				return ev, fmt.Errorf("propagation: current energy %d: %w", e.To, err)
			}
			newEnergy := clamp(energy+delta, 0, 1)

			if err := memory.UpsertEnergyOnly(tx, e.To, newEnergy, ev.CreatedAt); err != nil {
				return ev, fmt.Errorf("propagation: upsert energy %d: %w", e.To, err)
			}

			visited[e.To] = true
			details = append(details, model.PropagationDetail{ContentKey: e.To, Depth: wf.depth + 1, Delta: delta})
			queue = append(queue, wavefront{node: e.To, delta: delta, depth: wf.depth + 1})
		}
	}

	ev.Details = details
	if err := memory.RecordPropagation(tx, ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// granularity orders node types from coarse to fine; a dependency edge
// traversed from finer to coarser (word-instance -> verse) is the
// reinforcing direction, the reverse is dampened.
var granularity = map[model.NodeType]int{
	model.NodeChapter:      0,
	model.NodeVerse:        1,
	model.NodeWord:         2,
	model.NodeWordInstance: 2,
	model.NodeKnowledge:    1,
	model.NodeRoot:         0,
	model.NodeLemma:        2,
}

// directionFactor returns +1 for knowledge edges, +1 for a dependency
// edge traversed in its reinforcing direction (finer content reinforcing
// coarser content it composes), and reverseDampingFactor otherwise.
func (p *Propagator) directionFactor(e model.Edge) (float64, error) {
	if e.Type == model.EdgeKnowledge {
		return 1.0, nil
	}

	from, err := p.content.GetNode(e.From)
	if err != nil {
		return 0, err
	}
	to, err := p.content.GetNode(e.To)
	if err != nil {
		return 0, err
	}

	if granularity[from.Type] >= granularity[to.Type] {
		return 1.0, nil
	}
	return reverseDampingFactor, nil
}

// sampleTransmission draws the effective transmission coefficient for an
// edge from its distribution.
func sampleTransmission(rng *rand.Rand, d model.Distribution, weight float64) float64 {
	switch d.Type {
	case model.DistNormal:
		v := rng.NormFloat64()*d.ParamB + d.ParamA
		return clamp(v, 0, 1)
	case model.DistBeta:
		return sampleBeta(rng, d.ParamA, d.ParamB)
	default: // Const
		return weight
	}
}

// sampleBeta draws from Beta(alpha, beta) via two Gamma draws, the
// standard construction when no dedicated Beta sampler is available.
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	if alpha <= 0 {
		alpha = 1
	}
	if beta <= 0 {
		beta = 1
	}
	x := gammaSample(rng, alpha)
	y := gammaSample(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// gammaSample implements the Marsaglia-Tsang method for shape >= 1,
// falling back to the boost trick for shape < 1.
func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

// seedFrom derives a deterministic RNG seed from (user, session, event),
// making propagation reproducible for debugging per spec.md §4.4.
func seedFrom(userID, sessionID, eventID string) int64 {
	h := fnv64a(userID + "|" + sessionID + "|" + eventID)
	return int64(h)
}

func fnv64a(s string) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
