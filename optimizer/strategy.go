package optimizer

import (
	"cmp"
	"math"
	"math/rand"
	"slices"

	"github.com/signalsfoundry/constellation-optimizer/decision"
)

// Strategy produces populations. Implementations must only draw randomness
// from the supplied rng so that a seeded run is reproducible.
type Strategy interface {
	// Initial returns n genomes valid for s.
	Initial(s *decision.Schema, n int, rng *rand.Rand) []decision.Genome
	// Reproduce returns the next population from the evaluated one.
	// costs[i] is the cost of pop[i]; lower is better.
	Reproduce(s *decision.Schema, pop []decision.Genome, costs []float64, rng *rand.Rand) []decision.Genome
}

// Genetic is a steady generational GA: elitism, tournament selection, blend
// crossover and span-scaled gaussian mutation. Children are projected back
// into each variable's domain.
type Genetic struct {
	Elite          int
	TournamentSize int
	CrossoverRate  float64
	// BlendAlpha widens the crossover interval beyond the parents (BLX-alpha).
	BlendAlpha    float64
	MutationRate  float64
	MutationScale float64
}

// DefaultGenetic returns the parameters used when no strategy is configured.
func DefaultGenetic() Genetic {
	return Genetic{
		Elite:          1,
		TournamentSize: 3,
		CrossoverRate:  0.9,
		BlendAlpha:     0.5,
		MutationRate:   0.2,
		MutationScale:  0.1,
	}
}

// Initial samples every genome uniformly.
func (g Genetic) Initial(s *decision.Schema, n int, rng *rand.Rand) []decision.Genome {
	pop := make([]decision.Genome, n)
	for i := range pop {
		pop[i] = s.RandomInit(rng)
	}
	return pop
}

// Reproduce keeps the Elite best genomes and fills the rest with offspring.
func (g Genetic) Reproduce(s *decision.Schema, pop []decision.Genome, costs []float64, rng *rand.Rand) []decision.Genome {
	n := len(pop)
	if n == 0 {
		return nil
	}
	order := rankByCost(costs)
	next := make([]decision.Genome, 0, n)
	for _, i := range order[:min(max(g.Elite, 0), n)] {
		next = append(next, pop[i].Clone())
	}

	vars := s.Variables()
	for len(next) < n {
		a := pop[g.tournament(costs, rng)]
		b := pop[g.tournament(costs, rng)]
		var child decision.Genome
		if rng.Float64() < g.CrossoverRate {
			child = g.blend(vars, a, b, rng)
		} else {
			child = a.Clone()
		}
		g.mutate(vars, child, rng)
		next = append(next, child)
	}
	return next
}

func (g Genetic) tournament(costs []float64, rng *rand.Rand) int {
	k := max(g.TournamentSize, 1)
	best := rng.Intn(len(costs))
	for range k - 1 {
		i := rng.Intn(len(costs))
		if costs[i] < costs[best] {
			best = i
		}
	}
	return best
}

func (g Genetic) blend(vars []decision.Variable, a, b decision.Genome, rng *rand.Rand) decision.Genome {
	child := make(decision.Genome, len(vars))
	for i, v := range vars {
		x, y := a[i].Float(), b[i].Float()
		lo, hi := math.Min(x, y), math.Max(x, y)
		d := hi - lo
		child[i] = v.Project(lo - g.BlendAlpha*d + rng.Float64()*d*(1+2*g.BlendAlpha))
	}
	return child
}

func (g Genetic) mutate(vars []decision.Variable, child decision.Genome, rng *rand.Rand) {
	for i, v := range vars {
		if rng.Float64() >= g.MutationRate {
			continue
		}
		step := rng.NormFloat64() * g.MutationScale * v.Span()
		if v.Kind == decision.Integer && math.Abs(step) < 0.5 {
			// Small integer domains would never move otherwise.
			step = math.Copysign(1, step)
		}
		child[i] = v.Project(child[i].Float() + step)
	}
}

// rankByCost returns indices ordered by ascending cost, ties by index.
func rankByCost(costs []float64) []int {
	order := make([]int, len(costs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(costs[a], costs[b])
	})
	return order
}
