package item

import (
	"fmt"
	"math"
	"math/rand"
)

// Tier is one rarity bucket of a drop table.
type Tier struct {
	Rarity Rarity
	Weight float64
	Kinds  []string
}

// Table is a weighted rarity table. Weights must sum to 1.
type Table struct {
	Tiers []Tier
}

// Validate checks the table is drawable.
func (t Table) Validate() error {
	if len(t.Tiers) == 0 {
		return fmt.Errorf("table has no tiers")
	}
	total := 0.0
	for _, tier := range t.Tiers {
		if len(tier.Kinds) == 0 {
			return fmt.Errorf("tier %s has no kinds", tier.Rarity)
		}
		if tier.Weight <= 0 {
			return fmt.Errorf("tier %s has non-positive weight", tier.Rarity)
		}
		total += tier.Weight
	}
	if math.Abs(total-1) > 1e-9 {
		return fmt.Errorf("tier weights sum to %v, want 1", total)
	}
	return nil
}

// Draw picks a kind from the table using rng. The rng is injected so tests
// can fix the seed.
func (t Table) Draw(rng *rand.Rand) (string, Rarity) {
	roll := rng.Float64()
	acc := 0.0
	for _, tier := range t.Tiers {
		acc += tier.Weight
		if roll < acc {
			return tier.Kinds[rng.Intn(len(tier.Kinds))], tier.Rarity
		}
	}
	// Floating-point slack lands on the last tier.
	last := t.Tiers[len(t.Tiers)-1]
	return last.Kinds[rng.Intn(len(last.Kinds))], last.Rarity
}

// DefaultTable is the stock emoji drop table: 15% ultra, 30% rare, 55% common.
func DefaultTable() Table {
	return Table{
		Tiers: []Tier{
			{
				Rarity: RarityUltra,
				Weight: 0.15,
				Kinds: []string{
					"🐉", "🦄", "🐆", "🦈", "🦅", "🦋",
					"🌍", "🌙", "⭐", "🌈", "⚡", "❄️", "🔥",
					"🥇", "🥈", "🥉", "🏅", "🏆",
					"Single", "Taken", "Vibing", "Happy", "Adventurous",
				},
			},
			{
				Rarity: RarityRare,
				Weight: 0.30,
				Kinds: []string{
					"👻", "👽", "🤖", "💀", "😺", "😻",
					"💎", "💍", "👑", "🎩", "🎓", "🕶",
					"🚗", "🚕", "🏎", "🚲", "🛵",
					"🎷", "🎸", "🎹", "🎺", "🎻",
					"❤️", "💛", "💚", "💙", "💜", "💖",
				},
			},
			{
				Rarity: RarityCommon,
				Weight: 0.55,
				Kinds: []string{
					"😀", "😄", "😁", "🤣", "🙂", "😉", "😊", "🥰", "😍", "🤩",
					"😋", "😜", "🤪", "🤔", "😴", "🥳", "🤠",
					"👋", "👌", "✌️", "🤙", "👍", "✊",
					"🐶", "🐱", "🐰", "🦊", "🐻", "🐼", "🐸", "🐵", "🐧",
					"🌵", "🌲", "🌴", "🍀", "🍁", "🌷",
					"🍎", "🍌", "🍉", "🍇", "🍓", "🥑", "🍕", "🍔", "🌮", "🍣",
					"⚽", "🏀", "🎾", "🎱", "🏓", "⛳",
				},
			},
		},
	}
}
