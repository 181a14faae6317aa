package game

import (
	"carnival/internal/game/spatial"
)

// Leaderboard ranks players by round score using a skip list.
//
// Operations:
//   - Submit: O(log n)
//   - Rank: O(log n)
//   - Top: O(log n + k)
//   - Around: O(log n + k)
//
// Ties on score are broken by player ID ascending.
type Leaderboard struct {
	skipList *spatial.SkipList
}

// Standing is one player's place on a leaderboard.
type Standing struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{skipList: spatial.NewSkipList()}
}

// Submit records a score, replacing any earlier one for the player.
func (lb *Leaderboard) Submit(playerID string, score int) {
	lb.skipList.Insert(playerID, float64(score))
}

// SubmitBest records a score only if it beats the player's current one.
func (lb *Leaderboard) SubmitBest(playerID string, score int) bool {
	if old, ok := lb.Score(playerID); ok && score <= old {
		return false
	}
	lb.skipList.Insert(playerID, float64(score))
	return true
}

// Remove drops a player.
func (lb *Leaderboard) Remove(playerID string) {
	lb.skipList.Remove(playerID)
}

// Rank returns the player's 1-based rank, or 0 if absent.
func (lb *Leaderboard) Rank(playerID string) int {
	return lb.skipList.GetRank(playerID)
}

// Score returns the player's recorded score.
func (lb *Leaderboard) Score(playerID string) (int, bool) {
	s, ok := lb.skipList.GetScore(playerID)
	return int(s), ok
}

// Top returns the best n standings.
func (lb *Leaderboard) Top(n int) []Standing {
	return standings(lb.skipList.GetRange(1, n), 1)
}

// Around returns up to above players ranked higher, the player, and up to
// below players ranked lower.
func (lb *Leaderboard) Around(playerID string, above, below int) []Standing {
	rank := lb.skipList.GetRank(playerID)
	if rank == 0 {
		return nil
	}
	start := max(1, rank-above)
	return standings(lb.skipList.GetRange(start, rank+below), start)
}

// Len returns the number of ranked players.
func (lb *Leaderboard) Len() int {
	return lb.skipList.Length()
}

func standings(entries []spatial.SkipListEntry, firstRank int) []Standing {
	out := make([]Standing, len(entries))
	for i, e := range entries {
		out[i] = Standing{PlayerID: e.Key, Score: int(e.Score), Rank: firstRank + i}
	}
	return out
}
