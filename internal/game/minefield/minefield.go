// Package minefield implements a turn-based board game: players take turns
// revealing squares, mines knock them out of the round, and the survivors
// of a cleared board score a point. Turns run on a warn/skip clock and
// rounds chain automatically after a short pause.
package minefield

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

// Errors for the minefield game.
var (
	ErrNotYourTurn    = errors.New("it is not your turn")
	ErrTooLate        = errors.New("too slow, the turn already passed")
	ErrNotPlaying     = errors.New("the board is not live right now")
	ErrNotInRound     = errors.New("you are out of this round")
	ErrBadSquare      = errors.New("that square cannot be picked")
	ErrAnnounceFailed = errors.New("could not post the join announcement")
)

// strikeLimit is how many skipped turns knock a player out of the round.
const strikeLimit = 3

// Phase is the session lifecycle stage.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseCooldown Phase = "cooldown"
	PhaseEnded    Phase = "ended"
)

// PickResult classifies what a reveal uncovered.
type PickResult string

const (
	PickSafe PickResult = "safe"
	PickMine PickResult = "mine"
)

// Square is one board cell.
type Square struct {
	Mine     bool
	Revealed bool
}

// Config holds minefield game configuration.
type Config struct {
	Rows        int
	Cols        int
	Mines       int
	TargetScore int
	MinPlayers  int
	MaxPlayers  int

	JoinWindow    time.Duration
	WarnAfter     time.Duration
	SkipAfter     time.Duration
	RoundCooldown time.Duration
}

// State is the game-specific session payload. It is only touched while the
// chat's lock is held; the turn clock's hooks re-acquire that lock before
// reading it.
type State struct {
	Phase     Phase
	Collector *engine.Collector
	Names     map[int64]string
	Order     []int64
	Scores    map[int64]int
	Strikes   map[int64]int
	InRound   map[int64]bool

	Grid     []Square
	SafeLeft int
	Round    int
	Turn     int // turn sequence, distinguishes repeat turns of one player

	Sched engine.TurnScheduler
	Clock *engine.TurnClock

	rng *rand.Rand
}

// Game hosts minefield sessions across chats.
// Requirements: 5.1, 10.1
type Game struct {
	cfg     Config
	store   *engine.Store[*State]
	locks   *lock.ChatLock
	msg     engine.Messenger
	auth    engine.Authorizer
	history *service.HistoryService
	kb      *KeyboardBuilder

	seedMu sync.Mutex
	seed   *rand.Rand
}

// New creates the minefield game module.
func New(cfg Config, msg engine.Messenger, auth engine.Authorizer, locks *lock.ChatLock, history *service.HistoryService) *Game {
	return &Game{
		cfg:     cfg,
		store:   engine.NewStore[*State]("minefield"),
		locks:   locks,
		msg:     msg,
		auth:    auth,
		history: history,
		kb:      NewKeyboardBuilder(),
		seed:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the game's display name.
func (g *Game) Name() string { return "Minefield" }

// Command returns the command that starts this game.
func (g *Game) Command() string { return "minefield" }

// Description returns a brief description of the game.
func (g *Game) Description() string {
	return "Take turns revealing squares; dodge the mines, outlast the table."
}

// Active reports whether the chat has a live minefield session.
func (g *Game) Active(chatID int64) bool {
	return g.store.Active(chatID)
}

// SameThread reports whether a command from the given forum thread may
// address the chat's session.
func (g *Game) SameThread(scope, thread int64) bool {
	return g.store.SameThread(scope, thread)
}

// newSessionRng derives a per-session rand.Rand; rand.Rand is not safe for
// concurrent use across chats.
func (g *Game) newSessionRng() *rand.Rand {
	g.seedMu.Lock()
	defer g.seedMu.Unlock()
	return rand.New(rand.NewSource(g.seed.Int63()))
}

// OpenLobby starts a session in lobby phase and opens its join window. The
// first round starts by itself when the window closes; the announce
// callback posts the join message with its buttons. The owner joins
// automatically.
// Requirements: 2.1, 5.1
func (g *Game) OpenLobby(scope, thread, owner int64, ownerName string, announce func(*engine.Collector) error) (*engine.Session[*State], error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	state := &State{
		Phase:   PhaseLobby,
		Names:   map[int64]string{owner: ownerName},
		Scores:  make(map[int64]int),
		Strikes: make(map[int64]int),
		rng:     g.newSessionRng(),
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

// Join adds a player during the lobby phase.
func (g *Game) Join(scope, userID int64, name string) (engine.JoinOutcome, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return engine.JoinClosed, engine.ErrNoSession
	}
	if sess.State.Phase != PhaseLobby {
		return engine.JoinClosed, ErrNotPlaying
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
		return false, ErrNotPlaying
	}
	if sess.OwnerID == userID {
		return false, fmt.Errorf("the host cannot leave; use /minefield_end instead")
	}
	return sess.State.Collector.Leave(userID), nil
}

// watchWindow starts the first round when the join window closes, or tears
// the session down when too few players turned up.
func (g *Game) watchWindow(sess *engine.Session[*State], col *engine.Collector) {
	<-col.Done()

	g.locks.Lock(sess.Scope)
	defer g.locks.Unlock(sess.Scope)

	live := g.store.Get(sess.Scope)
	if live == nil || live.ID != sess.ID || live.State.Collector != col {
		return
	}
	if live.State.Phase != PhaseLobby || col.Reason() == engine.CloseCancelled {
		return
	}

	entrants := col.Entrants()
	if len(entrants) < g.cfg.MinPlayers {
		g.announce(sess, fmt.Sprintf("😔 Only %d player(s) signed up, need %d. Maybe next time.",
			len(entrants), g.cfg.MinPlayers))
		g.finishLocked(sess, model.OutcomeAbandoned, nil)
		return
	}

	st := live.State
	st.Order = entrants
	for _, id := range entrants {
		st.Scores[id] = 0
	}
	st.Clock = engine.NewTurnClock()
	g.startRoundLocked(sess)
}

// startRoundLocked lays a fresh board, rebuilds the turn order from every
// player, and opens the first turn.
// Requirements: 5.2
func (g *Game) startRoundLocked(sess *engine.Session[*State]) {
	st := sess.State
	st.Round++
	st.Phase = PhasePlaying

	cells := g.cfg.Rows * g.cfg.Cols
	st.Grid = make([]Square, cells)
	for _, idx := range st.rng.Perm(cells)[:g.cfg.Mines] {
		st.Grid[idx].Mine = true
	}
	st.SafeLeft = cells - g.cfg.Mines

	st.InRound = make(map[int64]bool, len(st.Order))
	for _, id := range st.Order {
		st.InRound[id] = true
		st.Strikes[id] = 0
	}

	// With more players than safe squares not everyone would get a turn
	// per cycle, so the order is drawn instead of rotated.
	st.Sched = engine.NewTurnScheduler(st.Order, st.SafeLeft, st.rng)

	g.announce(sess, fmt.Sprintf("🧨 Round %d! %dx%d board, %d mines hidden. First to %d point(s) wins.",
		st.Round, g.cfg.Rows, g.cfg.Cols, g.cfg.Mines, g.cfg.TargetScore))
	g.startTurnLocked(sess)
}

// startTurnLocked announces the next owner's board and arms the turn clock.
// Requirements: 3.1, 3.3, 5.3
func (g *Game) startTurnLocked(sess *engine.Session[*State]) {
	st := sess.State
	owner, ok := st.Sched.Next()
	if !ok {
		g.endRoundLocked(sess)
		return
	}

	st.Turn++
	turn := st.Turn
	name := st.Names[owner]

	g.announce(sess,
		fmt.Sprintf("🎯 %s, pick a square! %d safe square(s) left.\n%s", name, st.SafeLeft, renderScores(st)),
		g.kb.BuildBoard(st.Grid, g.cfg.Cols))

	st.Clock.Start(sess.Timers, owner, g.cfg.WarnAfter, g.cfg.SkipAfter, engine.TurnHooks{
		StillCurrent: func(id int64) bool {
			return g.turnStillCurrent(sess, id, turn)
		},
		OnWarn: func(id int64) {
			secs := int((g.cfg.SkipAfter - g.cfg.WarnAfter).Seconds())
			g.announce(sess, fmt.Sprintf("⏰ %s, %d seconds left on your turn!", name, secs))
		},
		OnSkip: func(id int64) {
			g.turnSkipped(sess, id, turn)
		},
	})
}

// turnStillCurrent is the clock's liveness guard: the session, round phase,
// and exact turn sequence must all still match.
func (g *Game) turnStillCurrent(sess *engine.Session[*State], owner int64, turn int) bool {
	g.locks.Lock(sess.Scope)
	defer g.locks.Unlock(sess.Scope)

	live := g.store.Get(sess.Scope)
	if live == nil || live.ID != sess.ID {
		return false
	}
	st := live.State
	if st.Phase != PhasePlaying || st.Turn != turn {
		return false
	}
	current, ok := st.Sched.Next()
	return ok && current == owner
}

// turnSkipped handles a turn the clock forfeited: a strike, possibly an
// elimination, then the next turn.
// Requirements: 3.3, 5.4
func (g *Game) turnSkipped(sess *engine.Session[*State], owner int64, turn int) {
	g.locks.Lock(sess.Scope)
	defer g.locks.Unlock(sess.Scope)

	live := g.store.Get(sess.Scope)
	if live == nil || live.ID != sess.ID {
		return
	}
	st := live.State
	if st.Phase != PhasePlaying || st.Turn != turn {
		return
	}

	st.Strikes[owner]++
	name := st.Names[owner]
	if st.Strikes[owner] >= strikeLimit {
		st.InRound[owner] = false
		st.Sched.Remove(owner)
		g.announce(sess, fmt.Sprintf("💤 %s dozed off once too often and is out of the round!", name))
	} else {
		st.Sched.Advance(true)
		g.announce(sess, fmt.Sprintf("💤 %s ran out of time. Strike %d of %d, back of the line.",
			name, st.Strikes[owner], strikeLimit))
	}

	if g.roundOverLocked(st) {
		g.endRoundLocked(sess)
		return
	}
	g.startTurnLocked(sess)
}

// PickReport summarizes a reveal for the callback response.
type PickReport struct {
	Result    PickResult
	Cell      int
	SafeLeft  int
	Knocked   bool // the picker left the round
	RoundOver bool
	GameOver  bool
	Winners   []int64
}

// Pick reveals a square for the current turn owner. The turn clock is
// cancelled before any state changes; losing that race means the skip
// already fired and the pick is refused.
// Requirements: 3.2, 5.3, 5.5
func (g *Game) Pick(scope, actor int64, cell int) (*PickReport, error) {
	g.locks.Lock(scope)
	defer g.locks.Unlock(scope)

	sess := g.store.Get(scope)
	if sess == nil {
		return nil, engine.ErrNoSession
	}
	st := sess.State
	if st.Phase != PhasePlaying {
		return nil, ErrNotPlaying
	}
	if !st.InRound[actor] {
		return nil, ErrNotInRound
	}
	owner, ok := st.Sched.Next()
	if !ok || owner != actor {
		return nil, ErrNotYourTurn
	}
	if cell < 0 || cell >= len(st.Grid) || st.Grid[cell].Revealed {
		return nil, ErrBadSquare
	}
	if !st.Clock.Acted(actor) {
		return nil, ErrTooLate
	}

	st.Grid[cell].Revealed = true
	report := &PickReport{Cell: cell}
	name := st.Names[actor]

	if st.Grid[cell].Mine {
		report.Result = PickMine
		report.Knocked = true
		st.InRound[actor] = false
		st.Sched.Remove(actor)
		g.announce(sess, fmt.Sprintf("💥 BOOM! %s hit a mine and is out of the round!", name))
	} else {
		report.Result = PickSafe
		st.SafeLeft--
		st.Sched.Advance(false)
	}
	report.SafeLeft = st.SafeLeft

	if g.roundOverLocked(st) {
		report.RoundOver = true
		report.GameOver, report.Winners = g.endRoundLocked(sess)
		return report, nil
	}

	g.startTurnLocked(sess)
	return report, nil
}

// roundOverLocked reports whether the round has nothing left to play for:
// the board is cleared or at most one player is still standing.
func (g *Game) roundOverLocked(st *State) bool {
	if st.SafeLeft == 0 {
		return true
	}
	standing := 0
	for _, in := range st.InRound {
		if in {
			standing++
		}
	}
	return standing <= 1
}

// endRoundLocked scores the survivors, crowns a champion at the target
// score, or schedules the next round after the cooldown.
// Requirements: 3.4, 5.6
func (g *Game) endRoundLocked(sess *engine.Session[*State]) (gameOver bool, winners []int64) {
	st := sess.State
	st.Clock.Stop()

	var survivors []int64
	for _, id := range st.Order {
		if st.InRound[id] {
			survivors = append(survivors, id)
			st.Scores[id]++
		}
	}

	switch len(survivors) {
	case 0:
		g.announce(sess, "☠️ Nobody survived the round. No points awarded.")
	case 1:
		g.announce(sess, fmt.Sprintf("🏅 %s outlasted everyone and scores a point!\n%s",
			st.Names[survivors[0]], renderScores(st)))
	default:
		g.announce(sess, fmt.Sprintf("🏅 The board is clear! %d survivor(s) score a point.\n%s",
			len(survivors), renderScores(st)))
	}

	for _, id := range survivors {
		if st.Scores[id] >= g.cfg.TargetScore {
			winners = append(winners, id)
		}
	}
	if len(winners) > 0 {
		names := ""
		for i, id := range winners {
			if i > 0 {
				names += ", "
			}
			names += st.Names[id]
		}
		g.announce(sess, fmt.Sprintf("🏆 %s win(s) the game with %d point(s)!", names, g.cfg.TargetScore))
		st.Phase = PhaseEnded
		g.finishLocked(sess, model.OutcomeCompleted, winners)
		return true, winners
	}

	st.Phase = PhaseCooldown
	engine.ScheduleNextRound(g.store, sess.Scope, g.cfg.RoundCooldown,
		func() {
			g.announce(sess, fmt.Sprintf("⏳ Next round starts in %d seconds...",
				int(g.cfg.RoundCooldown.Seconds())))
		},
		func(live *engine.Session[*State]) {
			g.locks.Lock(live.Scope)
			defer g.locks.Unlock(live.Scope)
			if live.State.Phase != PhaseCooldown {
				return
			}
			g.startRoundLocked(live)
		})
	return false, nil
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

// finishLocked ends the session: the store drains the timer bag (turn
// clock, cooldown, and join window included) before the slot is freed, and
// the match is recorded best-effort. Lobby-only sessions are not recorded.
func (g *Game) finishLocked(sess *engine.Session[*State], outcome string, winners []int64) {
	if removed := g.store.Stop(sess.Scope); removed == nil {
		return
	}
	sess.State.Collector.Close(engine.CloseCancelled)

	if sess.State.Round > 0 {
		g.history.Record(sess.Scope, "minefield", sess.OwnerID, len(sess.State.Order), winners, outcome, sess.StartedAt)
	}
	log.Info().
		Int64("chat_id", sess.Scope).
		Str("outcome", outcome).
		Int("rounds", sess.State.Round).
		Msg("Minefield session ended")
}

// announce posts to the session's chat, logging delivery failures.
func (g *Game) announce(sess *engine.Session[*State], what any, opts ...any) {
	if _, err := g.msg.Announce(sess.Scope, sess.Thread, what, opts...); err != nil {
		log.Warn().Err(err).Int64("chat_id", sess.Scope).Msg("Failed to announce board update")
	}
}

// renderScores renders the standings line.
func renderScores(st *State) string {
	text := "Scores:"
	for _, id := range st.Order {
		marker := ""
		if !st.InRound[id] {
			marker = " 💀"
		}
		text += fmt.Sprintf(" %s %d%s |", st.Names[id], st.Scores[id], marker)
	}
	return text[:len(text)-2]
}
