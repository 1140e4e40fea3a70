// Package mafia tests for the session operations.
// Requirements: 4.1, 4.3, 4.4, 4.5, 4.6
package mafia

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-gamenight-bot/internal/engine"
	"telegram-gamenight-bot/internal/pkg/lock"
)

const testAdminID int64 = 999

type fakeMessenger struct {
	mu         sync.Mutex
	announced  []string
	notes      map[int64][]string
	failNotify map[int64]bool
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		notes:      make(map[int64][]string),
		failNotify: make(map[int64]bool),
	}
}

func (m *fakeMessenger) Announce(scope, thread int64, what any, opts ...any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.announced = append(m.announced, fmt.Sprint(what))
	return len(m.announced), nil
}

func (m *fakeMessenger) Notify(userID int64, what any, opts ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNotify[userID] {
		return errors.New("user never opened a private chat")
	}
	m.notes[userID] = append(m.notes[userID], fmt.Sprint(what))
	return nil
}

func (m *fakeMessenger) DisplayName(scope, userID int64) string {
	return fmt.Sprintf("user-%d", userID)
}

func (m *fakeMessenger) notesFor(userID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes[userID]...)
}

type ownerOrAdmin struct{}

func (ownerOrAdmin) CanManage(actorID, ownerID int64) bool {
	return actorID == ownerID || actorID == testAdminID
}

func newTestGame() (*Game, *fakeMessenger) {
	msg := newFakeMessenger()
	cfg := Config{MinPlayers: 4, MaxPlayers: 15, JoinWindow: time.Hour}
	return New(cfg, msg, ownerOrAdmin{}, lock.NewChatLock(), nil), msg
}

func announceOK(*engine.Collector) error { return nil }

// openWithPlayers opens a lobby for owner 1 and joins users 2..n.
func openWithPlayers(t *testing.T, g *Game, scope int64, n int) *engine.Session[*State] {
	t.Helper()
	sess, err := g.OpenLobby(scope, 0, 1, "user-1", announceOK)
	require.NoError(t, err)
	for id := int64(2); id <= int64(n); id++ {
		outcome, err := g.Join(scope, id, fmt.Sprintf("user-%d", id))
		require.NoError(t, err)
		require.Equal(t, engine.JoinAccepted, outcome)
	}
	return sess
}

func TestOpenLobby_AnnounceFailure(t *testing.T) {
	g, _ := newTestGame()

	_, err := g.OpenLobby(100, 0, 1, "user-1", func(*engine.Collector) error {
		return errors.New("telegram is down")
	})
	assert.ErrorIs(t, err, ErrAnnounceFailed)
	assert.False(t, g.Active(100))

	// The chat slot must be free again.
	_, err = g.OpenLobby(100, 0, 1, "user-1", announceOK)
	assert.NoError(t, err)
}

func TestOpenLobby_ScopeOccupied(t *testing.T) {
	g, _ := newTestGame()

	_, err := g.OpenLobby(100, 0, 1, "user-1", announceOK)
	require.NoError(t, err)

	_, err = g.OpenLobby(100, 0, 2, "user-2", announceOK)
	assert.ErrorIs(t, err, engine.ErrScopeOccupied)

	var occupied *engine.OccupiedError
	require.ErrorAs(t, err, &occupied)
	assert.Equal(t, "mafia", occupied.Existing.Game)
	assert.Equal(t, int64(1), occupied.Existing.OwnerID)
}

func TestJoinAndLeave(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 3)

	// Duplicates are reported, not double counted.
	outcome, err := g.Join(100, 2, "user-2")
	require.NoError(t, err)
	assert.Equal(t, engine.JoinDuplicate, outcome)
	assert.Equal(t, 3, sess.State.Collector.Size())

	left, err := g.Leave(100, 3)
	require.NoError(t, err)
	assert.True(t, left)
	assert.Equal(t, 2, sess.State.Collector.Size())

	// The host stays until the session ends.
	_, err = g.Leave(100, 1)
	assert.Error(t, err)
}

func TestJoin_NoSession(t *testing.T) {
	g, _ := newTestGame()

	_, err := g.Join(100, 2, "user-2")
	assert.ErrorIs(t, err, engine.ErrNoSession)
}

func TestBegin_NotEnoughPlayers(t *testing.T) {
	g, _ := newTestGame()
	openWithPlayers(t, g, 100, 3)

	_, err := g.Begin(100, 1)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	// The lobby survives a failed start.
	outcome, err := g.Join(100, 4, "user-4")
	require.NoError(t, err)
	assert.Equal(t, engine.JoinAccepted, outcome)
}

func TestBegin_HostOnly(t *testing.T) {
	g, _ := newTestGame()
	openWithPlayers(t, g, 100, 4)

	_, err := g.Begin(100, 2)
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)

	// An admin can start on the host's behalf.
	report, err := g.Begin(100, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Players)
}

func TestBegin_DealsRolesAndNotifies(t *testing.T) {
	g, msg := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)

	report, err := g.Begin(100, 1)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Players)
	assert.Equal(t, 1, report.MafiaCount)
	assert.True(t, report.HasDetective)
	assert.True(t, report.HasDoctor)
	assert.Empty(t, report.FailedDMs)

	assert.Equal(t, PhaseNight, sess.State.Phase)
	assert.Equal(t, 1, sess.State.Night)
	assert.Len(t, sess.State.Players, 6)

	for id := int64(1); id <= 6; id++ {
		require.Len(t, msg.notesFor(id), 1, "player %d should get a role briefing", id)
	}

	// Starting twice is refused.
	_, err = g.Begin(100, 1)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestBegin_ReportsFailedBriefings(t *testing.T) {
	g, msg := newTestGame()
	openWithPlayers(t, g, 100, 5)
	msg.failNotify[3] = true

	report, err := g.Begin(100, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, report.FailedDMs)
}

// findByRole returns a living player holding the role, for steering tests
// after the shuffled deal.
func findByRole(st *State, role Role) *Player {
	for _, id := range st.Order {
		if p := st.Players[id]; p.Alive && p.Role == role {
			return p
		}
	}
	return nil
}

func rosterIndexOf(st *State, id int64) int {
	for _, e := range livingRoster(st) {
		if e.ID == id {
			return e.Index
		}
	}
	return 0
}

func TestSubmitNightAction_Validation(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State
	mafia := findByRole(st, RoleMafia)
	villager := findByRole(st, RoleVillager)

	// Only the holder of the role may act.
	_, err = g.SubmitNightAction(100, villager.ID, ActionKill, rosterIndexOf(st, mafia.ID))
	assert.ErrorIs(t, err, ErrWrongRole)

	// Outsiders are rejected.
	_, err = g.SubmitNightAction(100, 777, ActionKill, 1)
	assert.ErrorIs(t, err, ErrNotInGame)

	// Targets address the numbered roster.
	_, err = g.SubmitNightAction(100, mafia.ID, ActionKill, 0)
	assert.ErrorIs(t, err, ErrBadTarget)
	_, err = g.SubmitNightAction(100, mafia.ID, ActionKill, 7)
	assert.ErrorIs(t, err, ErrBadTarget)

	// The mafia cannot eliminate its own.
	_, err = g.SubmitNightAction(100, mafia.ID, ActionKill, rosterIndexOf(st, mafia.ID))
	assert.ErrorIs(t, err, ErrBadTarget)

	target, err := g.SubmitNightAction(100, mafia.ID, ActionKill, rosterIndexOf(st, villager.ID))
	require.NoError(t, err)
	assert.Equal(t, villager.ID, target.ID)
	assert.Equal(t, villager.ID, st.KillTarget)
}

func TestSubmitNightAction_LastSubmissionWins(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State
	mafia := findByRole(st, RoleMafia)
	roster := livingRoster(st)

	var targets []RosterEntry
	for _, e := range roster {
		if st.Players[e.ID].Role != RoleMafia {
			targets = append(targets, e)
		}
	}
	require.GreaterOrEqual(t, len(targets), 2)

	_, err = g.SubmitNightAction(100, mafia.ID, ActionKill, targets[0].Index)
	require.NoError(t, err)
	_, err = g.SubmitNightAction(100, mafia.ID, ActionKill, targets[1].Index)
	require.NoError(t, err)

	assert.Equal(t, targets[1].ID, st.KillTarget)
}

func TestResolveNight_ProtectCancelsKill(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State
	victim := findByRole(st, RoleVillager)
	st.KillTarget = victim.ID
	st.ProtectTarget = victim.ID

	report, err := g.ResolveNight(100, 1)
	require.NoError(t, err)

	assert.True(t, report.Saved)
	assert.Zero(t, report.Killed)
	assert.True(t, st.Players[victim.ID].Alive)
	assert.Equal(t, PhaseDay, st.Phase)
}

func TestResolveNight_KillAndCheck(t *testing.T) {
	g, msg := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State
	mafia := findByRole(st, RoleMafia)
	detective := findByRole(st, RoleDetective)
	victim := findByRole(st, RoleVillager)
	dmCountBefore := len(msg.notesFor(detective.ID))

	st.KillTarget = victim.ID
	st.CheckTarget = mafia.ID

	report, err := g.ResolveNight(100, 1)
	require.NoError(t, err)

	assert.Equal(t, victim.ID, report.Killed)
	assert.False(t, st.Players[victim.ID].Alive)
	assert.True(t, report.CheckDelivered)

	notes := msg.notesFor(detective.ID)
	require.Len(t, notes, dmCountBefore+1)
	assert.Contains(t, notes[len(notes)-1], "MAFIA")

	// Submissions do not leak into the next night.
	assert.Zero(t, st.KillTarget)
	assert.Zero(t, st.CheckTarget)
	assert.Zero(t, st.ProtectTarget)
}

func TestResolveNight_ParityEndsGame(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	// Leave one mafia and two town standing; the night kill reaches parity.
	st := sess.State
	mafia := findByRole(st, RoleMafia)
	var town []*Player
	for _, id := range st.Order {
		if p := st.Players[id]; p.Role != RoleMafia {
			town = append(town, p)
		}
	}
	for _, p := range town[2:] {
		p.Alive = false
	}
	st.KillTarget = town[0].ID

	report, err := g.ResolveNight(100, 1)
	require.NoError(t, err)

	assert.True(t, report.Over)
	assert.Equal(t, WinnerMafia, report.Winner)
	assert.Equal(t, []int64{mafia.ID}, report.Winners)
	assert.False(t, g.Active(100))
}

func TestEndDay_StrictMajority(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 5)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State
	st.Phase = PhaseDay
	st.Votes = make(map[int64]int64)

	order := st.Order

	// 5 living, votes split 2-2-1: nobody reaches the majority of 3.
	require.NoError(t, g.Vote(100, order[0], order[4]))
	require.NoError(t, g.Vote(100, order[1], order[4]))
	require.NoError(t, g.Vote(100, order[2], order[3]))
	require.NoError(t, g.Vote(100, order[3], order[3]))
	require.NoError(t, g.Vote(100, order[4], order[0]))

	report, err := g.EndDay(100, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Majority)
	assert.Zero(t, report.Eliminated)
	assert.Equal(t, PhaseNight, st.Phase)
	assert.Equal(t, 2, st.Night)
}

func TestEndDay_MajorityEliminates(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State
	st.Phase = PhaseDay
	st.Votes = make(map[int64]int64)

	mafia := findByRole(st, RoleMafia)
	var voters []int64
	for _, id := range st.Order {
		if id != mafia.ID {
			voters = append(voters, id)
		}
	}

	// 6 living, majority is 4: three votes are not enough yet.
	for _, v := range voters[:3] {
		require.NoError(t, g.Vote(100, v, mafia.ID))
	}
	// A moved vote counts at its final target only.
	require.NoError(t, g.Vote(100, voters[3], voters[0]))
	require.NoError(t, g.Vote(100, voters[3], mafia.ID))

	report, err := g.EndDay(100, 1)
	require.NoError(t, err)

	assert.Equal(t, mafia.ID, report.Eliminated)
	assert.True(t, report.WasMafia)

	// The last mafia fell, so the town wins on the spot.
	assert.True(t, report.Over)
	assert.Equal(t, WinnerTown, report.Winner)
	assert.False(t, g.Active(100))
}

func TestVote_Validation(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 5)
	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	st := sess.State

	// Voting is a day activity.
	err = g.Vote(100, st.Order[0], st.Order[1])
	assert.ErrorIs(t, err, ErrWrongPhase)

	st.Phase = PhaseDay
	st.Votes = make(map[int64]int64)
	dead := st.Players[st.Order[2]]
	dead.Alive = false

	assert.ErrorIs(t, g.Vote(100, 777, st.Order[1]), ErrNotInGame)
	assert.ErrorIs(t, g.Vote(100, dead.ID, st.Order[1]), ErrNotAlive)
	assert.ErrorIs(t, g.Vote(100, st.Order[0], dead.ID), ErrBadTarget)

	require.NoError(t, g.Vote(100, st.Order[0], st.Order[1]))
	require.NoError(t, g.RetractVote(100, st.Order[0]))
	assert.ErrorIs(t, g.RetractVote(100, st.Order[0]), ErrBadTarget)
}

func TestEnd_Authorization(t *testing.T) {
	g, _ := newTestGame()
	openWithPlayers(t, g, 100, 4)

	_, err := g.End(100, 2)
	assert.ErrorIs(t, err, engine.ErrNotAuthorized)
	assert.True(t, g.Active(100))

	_, err = g.End(100, 1)
	require.NoError(t, err)
	assert.False(t, g.Active(100))

	_, err = g.End(100, 1)
	assert.ErrorIs(t, err, engine.ErrNoSession)
}

func TestForceEnd(t *testing.T) {
	g, _ := newTestGame()
	openWithPlayers(t, g, 100, 4)

	assert.True(t, g.ForceEnd(100))
	assert.False(t, g.Active(100))
	assert.False(t, g.ForceEnd(100))
}

func TestFindByPlayer(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 6)
	openWithPlayers(t, g, 200, 4)

	_, err := g.Begin(100, 1)
	require.NoError(t, err)

	// Only dealt, living players are routable.
	scope, ok := g.FindByPlayer(6)
	require.True(t, ok)
	assert.Equal(t, int64(100), scope)

	sess.State.Players[6].Alive = false
	_, ok = g.FindByPlayer(6)
	assert.False(t, ok)

	// Lobby members have no roles yet.
	_, ok = g.FindByPlayer(777)
	assert.False(t, ok)
}

func TestRoster(t *testing.T) {
	g, _ := newTestGame()
	sess := openWithPlayers(t, g, 100, 5)

	// No roster before the deal.
	_, err := g.Roster(100)
	assert.ErrorIs(t, err, ErrWrongPhase)

	_, err = g.Begin(100, 1)
	require.NoError(t, err)

	roster, err := g.Roster(100)
	require.NoError(t, err)
	require.Len(t, roster, 5)

	// The numbering is contiguous and skips the dead.
	sess.State.Players[roster[1].ID].Alive = false
	roster, err = g.Roster(100)
	require.NoError(t, err)
	require.Len(t, roster, 4)
	for i, e := range roster {
		assert.Equal(t, i+1, e.Index)
	}
}
