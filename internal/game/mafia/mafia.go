package mafia

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"telegram-gamenight-bot/internal/engine"
	"telegram-gamenight-bot/internal/model"
	"telegram-gamenight-bot/internal/pkg/lock"
	"telegram-gamenight-bot/internal/service"
)

// Errors for the mafia game.
var (
	ErrWrongPhase       = errors.New("that is not possible in the current phase")
	ErrNotEnoughPlayers = errors.New("not enough players joined")
	ErrNotInGame        = errors.New("you are not part of this game")
	ErrNotAlive         = errors.New("eliminated players cannot act")
	ErrWrongRole        = errors.New("your role cannot perform that action")
	ErrBadTarget        = errors.New("invalid target")
	ErrAnnounceFailed   = errors.New("could not post the join announcement")
	ErrNoGameForPlayer  = errors.New("you have no running game")
)

// NightAction is a role's private night submission.
type NightAction string

const (
	ActionKill    NightAction = "kill"
	ActionCheck   NightAction = "check"
	ActionProtect NightAction = "protect"
)

// Config holds mafia game configuration.
type Config struct {
	MinPlayers int
	MaxPlayers int
	JoinWindow time.Duration
}

// State is the game-specific session payload. It is only touched while the
// chat's lock is held.
type State struct {
	Phase     Phase
	Collector *engine.Collector
	Names     map[int64]string
	Players   map[int64]*Player
	Order     []int64 // join order, for stable rosters
	Night     int

	// Night submissions; last submission before resolution wins.
	KillTarget    int64
	CheckTarget   int64
	ProtectTarget int64

	// Day votes: voter -> target.
	Votes map[int64]int64
}

// Game hosts mafia sessions across chats.
// Requirements: 4.1, 10.1
type Game struct {
	cfg     Config
	store   *engine.Store[*State]
	locks   *lock.ChatLock
	msg     engine.Messenger
	auth    engine.Authorizer
	history *service.HistoryService

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates the mafia game module.
func New(cfg Config, msg engine.Messenger, auth engine.Authorizer, locks *lock.ChatLock, history *service.HistoryService) *Game {
	return &Game{
		cfg:     cfg,
		store:   engine.NewStore[*State]("mafia"),
		locks:   locks,
		msg:     msg,
		auth:    auth,
		history: history,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the game's display name.
func (g *Game) Name() string { return "Mafia" }

// Command returns the command that starts this game.
func (g *Game) Command() string { return "mafia" }

// Description returns a brief description of the game.
func (g *Game) Description() string {
	return "Social deduction: the mafia eliminates by night, the town votes by day."
}

// Active reports whether the chat has a live mafia session.
func (g *Game) Active(chatID int64) bool {
	return g.store.Active(chatID)
}

// SameThread reports whether a command from the given forum thread may
// address the chat's session.
func (g *Game) SameThread(scope, thread int64) bool {
	return g.store.SameThread(scope, thread)
}

// shuffle runs swap-based shuffling under the rng mutex; rand.Rand is not
// safe for use from multiple chats at once.
func (g *Game) shuffle(n int, swap func(i, j int)) {
	g.rngMu.Lock()
	g.rng.Shuffle(n, swap)
	g.rngMu.Unlock()
}

// OpenLobby starts a session in lobby phase and opens its join window. The
// announce callback posts the join message with its buttons; if it fails the
// session is rolled back and ErrAnnounceFailed returned so the caller can
// present a clean refusal. The owner joins automatically.
// Requirements: 2.1, 4.1
func (g *Game) OpenLobby(scope, thread, owner int64, ownerName string, announce func(*engine.Collector) error) (*engine.Session[*State], error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	state := &State{
		Phase: PhaseLobby,
		Names: map[int64]string{owner: ownerName},
		Votes: make(map[int64]int64),
	}
	sess, err := g.store.TryStart(scope, thread, owner, state)
	if err != nil {
		return nil, err
	}

	col := engine.OpenWindow(sess.Timers, g.cfg.JoinWindow, g.cfg.MaxPlayers, true, announce)
	if col.Reason() == engine.CloseAnnounceFailed {
		g.store.Stop(scope)
		return nil, ErrAnnounceFailed
	}
	state.Collector = col
	col.Join(owner)

	go g.watchWindow(sess, col)
	return sess, nil
}

// watchWindow announces the close of the join window. The host still starts
// the game explicitly, so this only reports who is in.
func (g *Game) watchWindow(sess *engine.Session[*State], col *engine.Collector) {
	<-col.Done()

	g.locks.Lock(sess.Scope)
	defer g.locks.Unlock(sess.Scope)

	live := g.store.Get(sess.Scope)
	if live == nil || live.ID != sess.ID || live.State.Collector != col {
		return
	}
	if live.State.Phase != PhaseLobby || col.Reason() == engine.CloseCancelled {
		// The host already started, or the session is going away.
		return
	}

	text := fmt.Sprintf("🕰 Sign-ups closed with %d player(s). The host can start with /mafia_begin or call it off with /mafia_end.", col.Size())
	if col.Reason() == engine.CloseMax {
		text = fmt.Sprintf("🕰 The lobby is full with %d players! The host can start with /mafia_begin.", col.Size())
	}
	if _, err := g.msg.Announce(sess.Scope, sess.Thread, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", sess.Scope).Msg("Failed to announce lobby close")
	}
}

// Join adds a player during the lobby phase.
func (g *Game) Join(scope, userID int64, name string) (engine.JoinOutcome, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return engine.JoinClosed, engine.ErrNoSession
	}
	if sess.State.Phase != PhaseLobby {
		return engine.JoinClosed, ErrWrongPhase
	}

	sess.State.Names[userID] = name
	return sess.State.Collector.Join(userID), nil
}

// Leave removes a player that retracts during the lobby phase.
func (g *Game) Leave(scope, userID int64) (bool, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return false, engine.ErrNoSession
	}
	if sess.State.Phase != PhaseLobby {
		return false, ErrWrongPhase
	}
	if sess.OwnerID == userID {
		return false, fmt.Errorf("the host cannot leave; use /mafia_end instead")
	}
	return sess.State.Collector.Leave(userID), nil
}

// BeginReport summarizes role assignment for the host announcement.
type BeginReport struct {
	Players      int
	MafiaCount   int
	HasDetective bool
	HasDoctor    bool
	FailedDMs    []int64
}

// Begin is the host-only transition from lobby to the first night: it closes
// the join window, assigns roles, and privately notifies every player.
// Notification failures do not block the game; they are reported so the host
// can compensate manually.
// Requirements: 4.2, 4.6
func (g *Game) Begin(scope, actor int64) (*BeginReport, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return nil, engine.ErrNoSession
	}
	if !g.auth.CanManage(actor, sess.OwnerID) {
		return nil, engine.ErrNotAuthorized
	}
	if sess.State.Phase != PhaseLobby {
		return nil, ErrWrongPhase
	}

	entrants := sess.State.Collector.Entrants()
	if len(entrants) < g.cfg.MinPlayers {
		return nil, fmt.Errorf("%w: need at least %d, have %d", ErrNotEnoughPlayers, g.cfg.MinPlayers, len(entrants))
	}
	sess.State.Collector.Close(engine.CloseCancelled)

	shuffled := make([]int64, len(entrants))
	copy(shuffled, entrants)
	g.shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	sess.State.Players = assignRoles(shuffled, sess.State.Names)
	sess.State.Order = entrants
	sess.State.Phase = PhaseNight
	sess.State.Night = 1

	detective, doctor := specialRoles(len(entrants))
	report := &BeginReport{
		Players:      len(entrants),
		MafiaCount:   mafiaCohortSize(len(entrants)),
		HasDetective: detective,
		HasDoctor:    doctor,
	}

	for _, id := range entrants {
		if err := g.msg.Notify(id, g.roleBriefing(sess.State, id)); err != nil {
			log.Warn().Err(err).
				Int64("chat_id", scope).
				Int64("user_id", id).
				Msg("Failed to deliver role briefing")
			report.FailedDMs = append(report.FailedDMs, id)
		}
	}
	return report, nil
}

// roleBriefing renders the private role message including the numbered
// roster used to address night actions.
func (g *Game) roleBriefing(st *State, userID int64) string {
	p := st.Players[userID]
	var text string
	switch p.Role {
	case RoleMafia:
		text = "🔪 You are MAFIA. Each night, send /kill <number> here to pick a victim. Your accomplices: " + g.mafiaListFor(st, userID)
	case RoleDetective:
		text = "🔎 You are the DETECTIVE. Each night, send /check <number> here to learn whether someone is mafia."
	case RoleDoctor:
		text = "💉 You are the DOCTOR. Each night, send /protect <number> here to shield someone from the mafia."
	default:
		text = "🧑‍🌾 You are a VILLAGER. Sleep at night, debate and vote by day."
	}
	return text + "\n\n" + renderRoster(st)
}

// mafiaListFor names the other mafia members so the cohort can coordinate.
func (g *Game) mafiaListFor(st *State, userID int64) string {
	var names []string
	for _, id := range st.Order {
		p := st.Players[id]
		if p.Role == RoleMafia && id != userID {
			names = append(names, p.Name)
		}
	}
	if len(names) == 0 {
		return "none, you work alone."
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

// RosterEntry is one living player with the number used to target them.
type RosterEntry struct {
	Index int
	ID    int64
	Name  string
}

// livingRoster numbers the living players in join order.
func livingRoster(st *State) []RosterEntry {
	var roster []RosterEntry
	for _, id := range st.Order {
		p := st.Players[id]
		if p == nil || !p.Alive {
			continue
		}
		roster = append(roster, RosterEntry{Index: len(roster) + 1, ID: id, Name: p.Name})
	}
	return roster
}

func renderRoster(st *State) string {
	text := "Living players:"
	for _, e := range livingRoster(st) {
		text += fmt.Sprintf("\n%d. %s", e.Index, e.Name)
	}
	return text
}

// Roster returns the chat's numbered living roster.
func (g *Game) Roster(scope int64) ([]RosterEntry, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return nil, engine.ErrNoSession
	}
	if sess.State.Players == nil {
		return nil, ErrWrongPhase
	}
	return livingRoster(sess.State), nil
}

// FindByPlayer locates the chat whose running session includes the user as
// a living player. Night actions arrive in private chats, which carry no
// chat scope of their own.
func (g *Game) FindByPlayer(userID int64) (int64, bool) {
	var scope int64
	found := false
	g.store.Each(func(s *engine.Session[*State]) {
		if found {
			return
		}
		if p, ok := s.State.Players[userID]; ok && p.Alive {
			scope = s.Scope
			found = true
		}
	})
	return scope, found
}

// SubmitNightAction records a role's private night action. The last
// submission before resolution wins. targetIndex addresses the numbered
// living roster from the role briefing.
// Requirements: 4.3
func (g *Game) SubmitNightAction(scope, actor int64, action NightAction, targetIndex int) (RosterEntry, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	var none RosterEntry
	sess := g.store.Get(scope)
	if sess == nil {
		return none, engine.ErrNoSession
	}
	st := sess.State
	if st.Phase != PhaseNight {
		return none, ErrWrongPhase
	}

	p, ok := st.Players[actor]
	if !ok {
		return none, ErrNotInGame
	}
	if !p.Alive {
		return none, ErrNotAlive
	}

	roster := livingRoster(st)
	if targetIndex < 1 || targetIndex > len(roster) {
		return none, ErrBadTarget
	}
	target := roster[targetIndex-1]

	switch action {
	case ActionKill:
		if p.Role != RoleMafia {
			return none, ErrWrongRole
		}
		if st.Players[target.ID].Role == RoleMafia {
			return none, fmt.Errorf("%w: you cannot target the mafia", ErrBadTarget)
		}
		st.KillTarget = target.ID
	case ActionCheck:
		if p.Role != RoleDetective {
			return none, ErrWrongRole
		}
		if target.ID == actor {
			return none, fmt.Errorf("%w: you already know yourself", ErrBadTarget)
		}
		st.CheckTarget = target.ID
	case ActionProtect:
		if p.Role != RoleDoctor {
			return none, ErrWrongRole
		}
		st.ProtectTarget = target.ID
	default:
		return none, ErrBadTarget
	}
	return target, nil
}

// NightReport summarizes a resolved night for the public announcement.
type NightReport struct {
	Night          int
	Killed         int64 // 0 = nobody died
	KilledName     string
	Saved          bool
	CheckDelivered bool // false when the detective's result DM failed
	Over           bool
	Winner         Winner
	Winners        []int64
	Living         []RosterEntry
}

// ResolveNight is the host-only night resolution: the detective's result is
// delivered first, then the protection is compared against the elimination
// target (a protected target survives silently). Afterwards the win
// condition is evaluated and the phase moves to day or the session ends.
// Requirements: 4.3, 4.5, 4.6
func (g *Game) ResolveNight(scope, actor int64) (*NightReport, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return nil, engine.ErrNoSession
	}
	if !g.auth.CanManage(actor, sess.OwnerID) {
		return nil, engine.ErrNotAuthorized
	}
	st := sess.State
	if st.Phase != PhaseNight {
		return nil, ErrWrongPhase
	}

	report := &NightReport{Night: st.Night, CheckDelivered: true}

	// Investigative visibility first.
	if st.CheckTarget != 0 {
		detective := g.findRole(st, RoleDetective)
		verdict := "NOT mafia"
		if st.Players[st.CheckTarget].Role == RoleMafia {
			verdict = "MAFIA"
		}
		text := fmt.Sprintf("🔎 Your investigation: %s is %s.", st.Players[st.CheckTarget].Name, verdict)
		if detective != 0 {
			if err := g.msg.Notify(detective, text); err != nil {
				log.Warn().Err(err).Int64("user_id", detective).Msg("Failed to deliver investigation result")
				report.CheckDelivered = false
			}
		}
	}

	// Protection cancels the elimination silently.
	if st.KillTarget != 0 {
		if st.KillTarget == st.ProtectTarget {
			report.Saved = true
		} else {
			victim := st.Players[st.KillTarget]
			victim.Alive = false
			report.Killed = victim.ID
			report.KilledName = victim.Name
		}
	}

	st.KillTarget, st.CheckTarget, st.ProtectTarget = 0, 0, 0

	if winner := evaluateWinner(st.Players); winner != WinnerNone {
		report.Over = true
		report.Winner = winner
		report.Winners = cohortMembers(st.Players, st.Order, winner)
		st.Phase = PhaseEnded
		g.finishLocked(sess, model.OutcomeCompleted, report.Winners)
		return report, nil
	}

	st.Phase = PhaseDay
	st.Votes = make(map[int64]int64)
	report.Living = livingRoster(st)
	return report, nil
}

// findRole returns the living holder of a single-actor role, or 0.
func (g *Game) findRole(st *State, role Role) int64 {
	for _, id := range st.Order {
		if p := st.Players[id]; p != nil && p.Alive && p.Role == role {
			return id
		}
	}
	return 0
}

// Vote records a living player's vote for a living target. Re-voting moves
// the vote.
// Requirements: 4.4
func (g *Game) Vote(scope, voter, target int64) error {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return engine.ErrNoSession
	}
	st := sess.State
	if st.Phase != PhaseDay {
		return ErrWrongPhase
	}

	v, ok := st.Players[voter]
	if !ok {
		return ErrNotInGame
	}
	if !v.Alive {
		return ErrNotAlive
	}
	tp, ok := st.Players[target]
	if !ok || !tp.Alive {
		return ErrBadTarget
	}

	st.Votes[voter] = target
	return nil
}

// RetractVote withdraws a player's vote.
func (g *Game) RetractVote(scope, voter int64) error {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return engine.ErrNoSession
	}
	st := sess.State
	if st.Phase != PhaseDay {
		return ErrWrongPhase
	}
	if _, ok := st.Votes[voter]; !ok {
		return ErrBadTarget
	}
	delete(st.Votes, voter)
	return nil
}

// DayReport summarizes a tallied day for the public announcement.
type DayReport struct {
	Night          int
	Living         int
	Majority       int
	Eliminated     int64 // 0 = no elimination
	EliminatedName string
	WasMafia       bool
	Counts         map[int64]int
	Over           bool
	Winner         Winner
	Winners        []int64
	Roster         []RosterEntry
}

// EndDay is the host-only day tally. An elimination requires a strict
// majority of the living count; a tie or no majority eliminates nobody.
// Requirements: 4.4, 4.5
func (g *Game) EndDay(scope, actor int64) (*DayReport, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return nil, engine.ErrNoSession
	}
	if !g.auth.CanManage(actor, sess.OwnerID) {
		return nil, engine.ErrNotAuthorized
	}
	st := sess.State
	if st.Phase != PhaseDay {
		return nil, ErrWrongPhase
	}

	living := len(livingRoster(st))
	counts := make(map[int64]int)
	for _, target := range st.Votes {
		counts[target]++
	}

	report := &DayReport{
		Night:    st.Night,
		Living:   living,
		Majority: living/2 + 1,
		Counts:   counts,
	}

	for target, n := range counts {
		if n >= report.Majority {
			victim := st.Players[target]
			victim.Alive = false
			report.Eliminated = target
			report.EliminatedName = victim.Name
			report.WasMafia = victim.Role == RoleMafia
			break
		}
	}

	st.Votes = make(map[int64]int64)

	if winner := evaluateWinner(st.Players); winner != WinnerNone {
		report.Over = true
		report.Winner = winner
		report.Winners = cohortMembers(st.Players, st.Order, winner)
		st.Phase = PhaseEnded
		g.finishLocked(sess, model.OutcomeCompleted, report.Winners)
		return report, nil
	}

	st.Phase = PhaseNight
	st.Night++
	report.Roster = livingRoster(st)
	return report, nil
}

// End stops the chat's session on behalf of the owner or an admin and
// returns it for a final summary.
func (g *Game) End(scope, actor int64) (*engine.Session[*State], error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return nil, engine.ErrNoSession
	}
	if !g.auth.CanManage(actor, sess.OwnerID) {
		return nil, engine.ErrNotAuthorized
	}

	outcome := model.OutcomeForced
	if actor == sess.OwnerID {
		outcome = model.OutcomeCancelled
	}
	g.finishLocked(sess, outcome, nil)
	return sess, nil
}

// ForceEnd ends the chat's session without an actor check; used by admin
// cleanup through the registry.
// Requirements: 6.4
func (g *Game) ForceEnd(chatID int64) bool {
	g.locks.Lock(chatID)
	defer g.locks.Unlock(chatID)

	sess := g.store.Get(chatID)
	if sess == nil {
		return false
	}
	g.finishLocked(sess, model.OutcomeForced, nil)
	return true
}

// finishLocked ends the session: the store drains the timer bag before the
// slot is freed, and the match is recorded best-effort. Only sessions that
// made it past the lobby are recorded.
func (g *Game) finishLocked(sess *engine.Session[*State], outcome string, winners []int64) {
	if removed := g.store.Stop(sess.Scope); removed == nil {
		return
	}
	sess.State.Collector.Close(engine.CloseCancelled)

	if sess.State.Players != nil {
		g.history.Record(sess.Scope, "mafia", sess.OwnerID, len(sess.State.Players), winners, outcome, sess.StartedAt)
	}
	log.Info().
		Int64("chat_id", sess.Scope).
		Str("outcome", outcome).
		Int("night", sess.State.Night).
		Msg("Mafia session ended")
}
