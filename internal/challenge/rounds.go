package challenge

import (
	"math/rand"

	"reveal-challenge-service/internal/domain"
)

// AssetFunc resolves the image reference for an answer.
type AssetFunc func(e domain.Entity) string

// GenerateRounds builds one round per stage up front. Answers are drawn with
// replacement across stages; distractors without replacement within a stage.
// A pool smaller than a stage's option count silently yields fewer options.
func GenerateRounds(rnd *rand.Rand, pool []domain.Entity, catalog domain.Catalog, asset AssetFunc) ([]domain.Round, error) {
	pool = uniqueByID(pool)
	if len(pool) == 0 {
		return nil, domain.ErrEmptyPool
	}

	rounds := make([]domain.Round, 0, len(catalog))
	for _, stage := range catalog {
		answerIdx := rnd.Intn(len(pool))
		answer := pool[answerIdx]

		want := stage.OptionCount - 1
		if want > len(pool)-1 {
			want = len(pool) - 1
		}

		others := make([]domain.Entity, 0, len(pool)-1)
		others = append(others, pool[:answerIdx]...)
		others = append(others, pool[answerIdx+1:]...)
		// partial Fisher-Yates: the first want entries become a uniform sample
		for i := 0; i < want; i++ {
			j := i + rnd.Intn(len(others)-i)
			others[i], others[j] = others[j], others[i]
		}

		options := make([]domain.Entity, 0, want+1)
		options = append(options, answer)
		options = append(options, others[:want]...)
		rnd.Shuffle(len(options), func(i, j int) {
			options[i], options[j] = options[j], options[i]
		})

		rounds = append(rounds, domain.Round{
			Stage:    stage,
			Answer:   answer,
			Options:  options,
			ImageRef: asset(answer),
		})
	}
	return rounds, nil
}

func uniqueByID(pool []domain.Entity) []domain.Entity {
	seen := make(map[string]struct{}, len(pool))
	out := make([]domain.Entity, 0, len(pool))
	for _, e := range pool {
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
