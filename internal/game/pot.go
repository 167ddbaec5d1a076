package game

import "sort"

// PotEntry is one player's contribution to the hand, folded or not.
type PotEntry struct {
	PlayerID string
	Seat     int
	Contrib  int64
	Folded   bool
	Rank     HandRank
}

// Pot is a settled betting layer and the players who can win it.
type Pot struct {
	Amount   int64
	Eligible []string
}

// BuildPots splits total contributions into main and side pots. Every
// distinct contribution total is a layer boundary; a layer's eligible
// winners are the non-folded players who reached it. Adjacent layers with
// the same eligible set collapse into one pot, which folds dead money from
// folded players into the pot it belongs to.
func BuildPots(entries []PotEntry) []Pot {
	levels := contributionLevels(entries)
	pots := make([]Pot, 0, len(levels))
	var prev int64
	for _, level := range levels {
		var amount int64
		eligible := make([]string, 0, len(entries))
		for _, e := range entries {
			amount += min64(e.Contrib, level) - min64(e.Contrib, prev)
			if !e.Folded && e.Contrib >= level {
				eligible = append(eligible, e.PlayerID)
			}
		}
		prev = level
		if amount == 0 {
			continue
		}
		if n := len(pots); n > 0 && (len(eligible) == 0 || sameEligible(pots[n-1].Eligible, eligible)) {
			pots[n-1].Amount += amount
			continue
		}
		pots = append(pots, Pot{Amount: amount, Eligible: eligible})
	}
	return pots
}

// ResolvePots awards every pot layer to its best-ranked eligible players.
// Split pots divide evenly with odd chips going to the eligible winner
// closest left of the button. The returned payouts sum to the total of all
// contributions.
func ResolvePots(entries []PotEntry, button, seatCount int) map[string]int64 {
	byID := make(map[string]PotEntry, len(entries))
	for _, e := range entries {
		byID[e.PlayerID] = e
	}
	payouts := make(map[string]int64)
	for _, pot := range BuildPots(entries) {
		winners := potWinners(pot, byID)
		share := pot.Amount / int64(len(winners))
		odd := pot.Amount % int64(len(winners))
		sort.Slice(winners, func(i, j int) bool {
			return buttonDistance(byID[winners[i]].Seat, button, seatCount) <
				buttonDistance(byID[winners[j]].Seat, button, seatCount)
		})
		for i, id := range winners {
			payouts[id] += share
			if int64(i) < odd {
				payouts[id]++
			}
		}
	}
	return payouts
}

func potWinners(pot Pot, byID map[string]PotEntry) []string {
	if len(pot.Eligible) == 1 {
		return []string{pot.Eligible[0]}
	}
	best := HandRank{Category: -1}
	for _, id := range pot.Eligible {
		if r := byID[id].Rank; r.BetterThan(best) {
			best = r
		}
	}
	winners := make([]string, 0, len(pot.Eligible))
	for _, id := range pot.Eligible {
		if byID[id].Rank.Equal(best) {
			winners = append(winners, id)
		}
	}
	return winners
}

func contributionLevels(entries []PotEntry) []int64 {
	seen := map[int64]bool{}
	levels := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.Contrib == 0 || seen[e.Contrib] {
			continue
		}
		seen[e.Contrib] = true
		levels = append(levels, e.Contrib)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

func sameEligible(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buttonDistance orders seats clockwise starting one past the button.
func buttonDistance(seat, button, seatCount int) int {
	return (seat - button + seatCount - 1) % seatCount
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
