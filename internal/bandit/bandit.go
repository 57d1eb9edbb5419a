// Package bandit implements the Thompson-sampling arm selector over the
// scheduler's Stage2 weight profiles, persisted per (user, goal_group).
package bandit

import (
	"database/sql"
	"fmt"
	"math"
	"math/rand"

	"github.com/iqrahapp/iqrah-core/internal/config"
	"github.com/iqrahapp/iqrah-core/internal/logging"
)

// Weights are the Stage2 scoring weights a bandit arm selects.
type Weights = config.ArmWeights

// Arm is one named weight profile's Beta posterior.
type Arm struct {
	Name       string
	Weights    Weights
	Successes  float64
	Failures   float64
}

// Optimizer selects and updates arms for (user, goal_group) pairs.
type Optimizer struct {
	db       *sql.DB
	profiles map[string]Weights
}

// New constructs an Optimizer over the configured arm profiles.
func New(db *sql.DB, profiles map[string]Weights) *Optimizer {
	return &Optimizer{db: db, profiles: profiles}
}

// Select samples x_i ~ Beta(successes_i, failures_i) for every arm and
// returns the argmax arm's weights, per spec.md §4.6. Arms with no
// persisted row start from the uninformative prior (1,1).
func (o *Optimizer) Select(userID, goalGroup string) (Arm, error) {
	arms, err := o.loadArms(userID, goalGroup)
	if err != nil {
		return Arm{}, err
	}

	rng := rand.New(rand.NewSource(rand.Int63()))
	var best Arm
	bestSample := -1.0
	for _, a := range arms {
		sample := sampleBeta(rng, a.Successes, a.Failures)
		if sample > bestSample {
			bestSample = sample
			best = a
		}
	}

	logging.Get(logging.CategoryBandit).Debug("selected arm %s for user=%s group=%s (sample=%.3f)", best.Name, userID, goalGroup, bestSample)
	return best, nil
}

func (o *Optimizer) loadArms(userID, goalGroup string) ([]Arm, error) {
	persisted := make(map[string]Arm)
	rows, err := o.db.Query(`SELECT arm_name, successes, failures FROM user_bandit_state WHERE user_id = ? AND goal_group = ?`, userID, goalGroup)
	if err != nil {
		return nil, fmt.Errorf("bandit: load arms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a Arm
		if err := rows.Scan(&a.Name, &a.Successes, &a.Failures); err != nil {
			return nil, fmt.Errorf("bandit: scan arm: %w", err)
		}
		persisted[a.Name] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arms := make([]Arm, 0, len(o.profiles))
	for name, weights := range o.profiles {
		if p, ok := persisted[name]; ok {
			p.Weights = weights
			arms = append(arms, p)
			continue
		}
		arms = append(arms, Arm{Name: name, Weights: weights, Successes: 1, Failures: 1})
	}
	return arms, nil
}

// Reward computes the session-completion reward per spec.md §4.6:
// 0.6*accuracy + 0.4*completion_rate.
func Reward(goodOrEasyCount, itemsCompleted, itemsCount int) float64 {
	if itemsCompleted == 0 {
		return 0
	}
	accuracy := float64(goodOrEasyCount) / float64(itemsCompleted)
	completionRate := float64(itemsCompleted) / float64(itemsCount)
	return 0.6*accuracy + 0.4*completionRate
}

// Update persists the selected arm's posterior after a reward, inside tx.
// successes/failures never fall below the uninformative prior floor (1,1).
func Update(tx *sql.Tx, userID, goalGroup, armName string, reward float64) error {
	var successes, failures float64
	err := tx.QueryRow(`SELECT successes, failures FROM user_bandit_state WHERE user_id=? AND goal_group=? AND arm_name=?`,
		userID, goalGroup, armName).Scan(&successes, &failures)
	if err == sql.ErrNoRows {
		successes, failures = 1, 1
	} else if err != nil {
		return fmt.Errorf("bandit: read arm for update: %w", err)
	}

	successes += reward
	failures += 1 - reward
	if successes < 1 {
		successes = 1
	}
	if failures < 1 {
		failures = 1
	}

	_, err = tx.Exec(`INSERT INTO user_bandit_state (user_id, goal_group, arm_name, successes, failures) VALUES (?,?,?,?,?)
		ON CONFLICT(user_id, goal_group, arm_name) DO UPDATE SET successes=excluded.successes, failures=excluded.failures`,
		userID, goalGroup, armName, successes, failures)
	if err != nil {
		return fmt.Errorf("bandit: update arm: %w", err)
	}
	return nil
}

// sampleBeta draws from Beta(alpha,beta) via two Gamma draws, mirroring
// the propagator's distribution sampler.
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
