package engagement

import (
	"strings"

	"github.com/edugame/xpsync/internal/domain"
)

// Score grades answers against the expected list, position by position,
// ignoring case and surrounding whitespace. Returns a percentage in [0, 100].
func Score(expected, given []string) int64 {
	if len(expected) == 0 {
		return 0
	}
	var correct int64
	for i, want := range expected {
		if i >= len(given) {
			break
		}
		if strings.EqualFold(strings.TrimSpace(given[i]), strings.TrimSpace(want)) {
			correct++
		}
	}
	return correct * 100 / int64(len(expected))
}

// RewardFor scales a challenge reward by score.
func RewardFor(reward, score int64) int64 {
	return reward * score / 100
}

// DefaultChallenges is the demo catalog seeded into a fresh database.
func DefaultChallenges() []domain.Challenge {
	return []domain.Challenge{
		{ID: "algebra-1", Title: "Linear equations", Answers: []string{"4", "-3", "7"}, RewardXP: 150},
		{ID: "fractions-1", Title: "Adding fractions", Answers: []string{"3/4", "5/6"}, RewardXP: 100},
		{ID: "geography-1", Title: "World capitals", Answers: []string{"canberra", "ottawa", "brasilia", "nairobi"}, RewardXP: 120},
		{ID: "vocab-1", Title: "Spanish greetings", Answers: []string{"hola", "adios", "gracias"}, RewardXP: 80},
		{ID: "physics-1", Title: "Units of measure", Answers: []string{"newton", "joule", "watt", "pascal", "coulomb"}, RewardXP: 250},
	}
}

const metaChallengesSeeded = "challenges_seeded"

// SeedChallenges installs DefaultChallenges once per database.
func (s *Service) SeedChallenges() error {
	done, err := s.db.GetMeta(metaChallengesSeeded)
	if err != nil {
		return err
	}
	if done != "" {
		return nil
	}
	for _, c := range DefaultChallenges() {
		if err := s.db.UpsertChallenge(c); err != nil {
			return err
		}
	}
	return s.db.SetMeta(metaChallengesSeeded, "1")
}
