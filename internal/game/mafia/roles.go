// Package mafia implements the social deduction game with night/day phases,
// private role actions, and majority voting. It is built entirely on the
// session engine: the lobby runs on a join window, session liveness on the
// per-chat store, and every scheduled callback on the session's timer bag.
// Requirements: 4.1 - Phase cycle lobby -> night -> day -> ... -> ended
package mafia

// Phase is the state of a mafia session.
type Phase string

const (
	PhaseLobby Phase = "lobby"
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
	PhaseEnded Phase = "ended"
)

// Role is a player's secret role.
type Role string

const (
	RoleMafia     Role = "mafia"
	RoleDetective Role = "detective"
	RoleDoctor    Role = "doctor"
	RoleVillager  Role = "villager"
)

// Winner identifies the winning cohort once the game is over.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerTown  Winner = "town"
	WinnerMafia Winner = "mafia"
)

// Player is one participant's in-game state.
type Player struct {
	ID    int64
	Name  string
	Role  Role
	Alive bool
}

// mafiaCohortSize is the step function sizing the mafia cohort: one mafia
// for 4-6 players, then one more for every 3 players beyond that.
// Requirements: 4.2
func mafiaCohortSize(n int) int {
	if n <= 6 {
		return 1
	}
	return 1 + (n-4)/3
}

// specialRoles reports which single-actor roles the lobby size supports.
func specialRoles(n int) (detective, doctor bool) {
	return n >= 5, n >= 6
}

// assignRoles builds the player map from a shuffled entrant list: the mafia
// cohort first, then at most one detective and one doctor from the
// remainder, villagers for the rest. shuffled must already be in random
// order.
func assignRoles(shuffled []int64, names map[int64]string) map[int64]*Player {
	n := len(shuffled)
	mafiaCount := mafiaCohortSize(n)
	detective, doctor := specialRoles(n)

	players := make(map[int64]*Player, n)
	for i, id := range shuffled {
		role := RoleVillager
		switch {
		case i < mafiaCount:
			role = RoleMafia
		case detective && i == mafiaCount:
			role = RoleDetective
		case doctor && i == mafiaCount+1:
			role = RoleDoctor
		}
		players[id] = &Player{
			ID:    id,
			Name:  names[id],
			Role:  role,
			Alive: true,
		}
	}
	return players
}

// evaluateWinner applies the win condition after a phase resolves: town wins
// once the mafia cohort is empty; mafia wins once it is at least as large as
// everyone else still alive (parity favors the mafia).
// Requirements: 4.5
func evaluateWinner(players map[int64]*Player) Winner {
	var mafiaAlive, townAlive int
	for _, p := range players {
		if !p.Alive {
			continue
		}
		if p.Role == RoleMafia {
			mafiaAlive++
		} else {
			townAlive++
		}
	}

	if mafiaAlive == 0 {
		return WinnerTown
	}
	if mafiaAlive >= townAlive {
		return WinnerMafia
	}
	return WinnerNone
}

// cohortMembers returns the living members of the winning cohort, in the
// given order, for summaries and match records.
func cohortMembers(players map[int64]*Player, order []int64, winner Winner) []int64 {
	var ids []int64
	for _, id := range order {
		p, ok := players[id]
		if !ok || !p.Alive {
			continue
		}
		if (winner == WinnerMafia) == (p.Role == RoleMafia) {
			ids = append(ids, id)
		}
	}
	return ids
}
