// Package scheduler implements the two-stage candidate generation and
// ranking pipeline: a prerequisite gate over goal members, then a
// weighted composite score with bandit-supplied weights.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/iqrahapp/iqrah-core/internal/bandit"
	"github.com/iqrahapp/iqrah-core/internal/content"
	"github.com/iqrahapp/iqrah-core/internal/fsrs"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/memory"
	"github.com/iqrahapp/iqrah-core/internal/model"
)

// maxConcurrentPrereqQueries bounds how many goal members' prerequisite
// edges are fetched from the content store at once during Stage1.2.
const maxConcurrentPrereqQueries = 8

// PrereqEnergyThreshold is θ_prereq from spec.md §4.5; a parent below this
// energy blocks its dependents. The gate is strict `<`, so equality passes.
const PrereqEnergyThreshold = 0.30

// Scheduler is stateless: it never memoizes across calls, so repeated
// invocations with identical inputs return identical ordering, per
// spec.md §4.5.
type Scheduler struct {
	content *content.Store
	memory  *memory.Repository
}

// New constructs a Scheduler over a content store and memory repository.
func New(c *content.Store, m *memory.Repository) *Scheduler {
	return &Scheduler{content: c, memory: m}
}

// Candidate is a scored, ready-to-rank node.
type Candidate struct {
	NodeID     model.NodeID
	Urgency    float64
	Readiness  float64
	Foundation float64
	Influence  float64
	Score      float64
	QuranOrder int64
}

// Schedule runs Stage1 (candidate gate) then Stage2 (scoring) and returns
// the top sessionSize node ids in descending score.
func (s *Scheduler) Schedule(ctx context.Context, userID string, goal model.Goal, weights bandit.Weights, sessionSize int, nowMs int64) ([]model.NodeID, error) {
	timer := logging.StartTimer(logging.CategoryScheduler, "Schedule")
	defer timer.StopWithThreshold(200_000_000) // 200ms warm-budget, in ns

	if len(goal.Members) == 0 {
		return nil, ErrEmptyGoal
	}

	memberSet := make(map[model.NodeID]bool, len(goal.Members))
	for _, m := range goal.Members {
		memberSet[m] = true
	}

	states, err := s.memory.GetMemoryForGoal(userID, goal.Members)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load memory for goal: %w", err)
	}

	parents, err := s.loadPrerequisiteParents(ctx, goal.Members, memberSet)
	if err != nil {
		return nil, err
	}

	candidates := s.gate(goal.Members, parents, states)
	scored, err := s.score(candidates, parents, states, weights, nowMs)
	if err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].QuranOrder != scored[j].QuranOrder {
			return scored[i].QuranOrder < scored[j].QuranOrder
		}
		return scored[i].NodeID < scored[j].NodeID
	})

	if sessionSize > len(scored) {
		sessionSize = len(scored)
	}

	result := make([]model.NodeID, sessionSize)
	for i := 0; i < sessionSize; i++ {
		result[i] = scored[i].NodeID
	}
	return result, nil
}

// loadPrerequisiteParents fetches each member's prerequisite parents
// concurrently, bounded by maxConcurrentPrereqQueries, since each lookup
// is an independent content-store read keyed only by its own member id.
// Results land in a slice indexed by position rather than a shared map,
// so no mutex is needed between goroutines.
func (s *Scheduler) loadPrerequisiteParents(ctx context.Context, members []model.NodeID, memberSet map[model.NodeID]bool) (map[model.NodeID][]model.NodeID, error) {
	sem := semaphore.NewWeighted(maxConcurrentPrereqQueries)
	eg, egCtx := errgroup.WithContext(ctx)
	results := make([][]model.NodeID, len(members))

	for i, c := range members {
		i, c := i, c
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			p, err := s.prerequisiteParents(c, memberSet)
			if err != nil {
				return fmt.Errorf("scheduler: prerequisite parents for %d: %w", c, err)
			}
			results[i] = p
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	parents := make(map[model.NodeID][]model.NodeID, len(members))
	for i, c := range members {
		parents[c] = results[i]
	}
	return parents, nil
}

// prerequisiteParents returns the dependency parents of c restricted to
// goal members, per spec.md §4.5 Stage1.2.
func (s *Scheduler) prerequisiteParents(c model.NodeID, memberSet map[model.NodeID]bool) ([]model.NodeID, error) {
	edges, err := s.content.GetEdgesTo(c)
	if err != nil {
		return nil, err
	}
	var parents []model.NodeID
	for _, e := range edges {
		if e.Type != model.EdgeDependency {
			continue
		}
		if memberSet[e.From] {
			parents = append(parents, e.From)
		}
	}
	return parents, nil
}

// gate applies Stage1's prerequisite gate, with the cold-start fallback
// to candidates whose parent-intersection with goal members is empty.
func (s *Scheduler) gate(members []model.NodeID, parents map[model.NodeID][]model.NodeID, states map[model.NodeID]model.MemoryState) []model.NodeID {
	var passed []model.NodeID
	for _, c := range members {
		ok := true
		for _, p := range parents[c] {
			energy := 0.0
			if st, found := states[p]; found {
				energy = st.Energy
			}
			if energy < PrereqEnergyThreshold {
				ok = false
				break
			}
		}
		if ok {
			passed = append(passed, c)
		}
	}

	if len(passed) > 0 {
		return passed
	}

	// Cold start: no candidate has all prerequisites satisfied. Fall
	// back to candidates with no in-goal parents at all.
	var fallback []model.NodeID
	for _, c := range members {
		if len(parents[c]) == 0 {
			fallback = append(fallback, c)
		}
	}
	return fallback
}

// score computes Stage2's four normalized signals and composite score
// for each gated candidate.
func (s *Scheduler) score(candidates []model.NodeID, parents map[model.NodeID][]model.NodeID, states map[model.NodeID]model.MemoryState, w bandit.Weights, nowMs int64) ([]Candidate, error) {
	result := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		urgency := 0.5
		if st, ok := states[c]; ok {
			elapsedDays := 0.0
			if st.LastReviewed > 0 {
				elapsedDays = float64(nowMs-st.LastReviewed) / (24 * 60 * 60 * 1000)
			}
			urgency = clamp(1-fsrs.Recall(elapsedDays, st.Stability), 0, 1)
		}

		readiness := 1.0
		for _, p := range parents[c] {
			e := 0.0
			if st, ok := states[p]; ok {
				e = st.Energy
			}
			if e < readiness {
				readiness = e
			}
		}

		meta, err := s.content.GetNodeMetadata(c)
		if err != nil {
			return nil, fmt.Errorf("scheduler: metadata for %d: %w", c, err)
		}

		score := w.Urgency*urgency + w.Readiness*readiness + w.Foundation*meta.FoundationalScore + w.Influence*meta.InfluenceScore
		result = append(result, Candidate{
			NodeID:     c,
			Urgency:    urgency,
			Readiness:  readiness,
			Foundation: meta.FoundationalScore,
			Influence:  meta.InfluenceScore,
			Score:      score,
			QuranOrder: meta.QuranOrder,
		})
	}
	return result, nil
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
