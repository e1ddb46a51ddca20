package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"story-player/internal/clients"
	"story-player/internal/models"

	"go.uber.org/zap"
)

// State - состояние плеера истории.
type State string

const (
	StateLoading          State = "loading"           // Сессии нет или идет старт
	StateAwaitingChoice   State = "awaiting-choice"   // Варианты есть, история не закончена
	StateAwaitingBranches State = "awaiting-branches" // Вариантов нет, идет опрос
	StateFinal            State = "final"             // Терминальное состояние
	StateError            State = "error"             // Неудачный запрос, выход через Retry
)

// SessionRepository - хранилище сессии одной вкладки.
type SessionRepository interface {
	Save(ctx context.Context, sess *models.Session) error
	Load(ctx context.Context) (*models.Session, error)
	Clear(ctx context.Context) error
}

// BranchWaiter ждет готовности вариантов для контрольной точки.
type BranchWaiter interface {
	Wait(ctx context.Context, sessionID string, checkpoint int) ([]models.ChoiceOption, error)
}

// Snapshot - модель представления плеера для UI.
type Snapshot struct {
	State        State             `json:"state"`
	Session      *models.Session   `json:"session,omitempty"`
	Busy         bool              `json:"busy"`
	CanChoose    bool              `json:"can_choose"`
	LegalOptions []models.ChoiceID `json:"legal_options"`
	Error        string            `json:"error,omitempty"`
	Retryable    bool              `json:"retryable,omitempty"`
}

// Player - конечный автомат интерактивной истории одной вкладки.
// Все переходы сериализуются мьютексом; сетевые вызовы делаются без него.
type Player struct {
	api    clients.StoryAPIClient
	store  SessionRepository
	poller BranchWaiter
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	session      *models.Session
	state        State
	inFlight     bool
	lastErr      error
	failedChoice models.ChoiceID      // Выбор, который повторит Retry
	pendingStart *models.StartRequest // Старт, который повторит Retry
	epoch        uint64               // Растет при Reset, ответы старых стартов отбрасываются
	pollCancel   context.CancelFunc
	pollGen      uint64
	pollWG       sync.WaitGroup
	closed       bool
	lastActivity time.Time

	listeners    map[int]func(Snapshot)
	nextListener int
}

// NewPlayer создает плеер. Сессия не загружается до вызова Resume или Start.
func NewPlayer(api clients.StoryAPIClient, store SessionRepository, poller BranchWaiter, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{
		api:          api,
		store:        store,
		poller:       poller,
		logger:       logger.Named("Player"),
		now:          time.Now,
		state:        StateLoading,
		lastActivity: time.Now(),
		listeners:    make(map[int]func(Snapshot)),
	}
}

// Subscribe регистрирует слушателя изменений. Возвращает функцию отписки.
func (p *Player) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Snapshot возвращает текущую модель представления.
func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// State возвращает текущее состояние.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// LastActivity возвращает время последнего обращения к плееру.
func (p *Player) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}

// Start запрашивает новую историю и заменяет ею текущую сессию.
func (p *Player) Start(ctx context.Context, req models.StartRequest) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return p.Snapshot(), err
	}

	p.mu.Lock()
	if err := p.checkUsableLocked(); err != nil {
		p.mu.Unlock()
		return p.Snapshot(), err
	}
	if p.inFlight {
		p.mu.Unlock()
		return p.Snapshot(), models.ErrContinueInFlight
	}
	p.cancelPollLocked()
	p.inFlight = true
	p.state = StateLoading
	p.lastErr = nil
	epoch := p.epoch
	p.notifyLocked()
	p.mu.Unlock()

	log := p.logger.With(zap.Bool("interactive", req.Interactive), zap.Int("duration", int(req.Duration)))
	log.Info("Starting story")

	res, err := p.api.StartStory(ctx, req)
	var sess *models.Session
	if err == nil {
		sess, err = models.NewSession(req, res, p.now())
		if err != nil {
			err = &clients.APIError{Op: clients.OpStartStory, StatusCode: 200, Retryable: true, Err: err}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if p.epoch != epoch {
		// Вкладку сбросили, пока старт был в полете: новая история не сохраняется.
		log.Info("Discarding started story after reset")
		p.notifyLocked()
		return p.snapshotLocked(), models.ErrSessionReplaced
	}
	if err == nil {
		err = p.store.Save(ctx, sess)
	}
	if err != nil {
		log.Warn("Story start failed", zap.Error(err))
		r := req
		p.pendingStart = &r
		p.failLocked(err, "")
		return p.snapshotLocked(), err
	}

	p.session = sess
	p.pendingStart = nil
	p.lastErr = nil
	p.failedChoice = ""
	p.state = deriveState(sess)
	p.startPollingLocked()
	log.Info("Story session created", zap.String("sessionID", sess.SessionID), zap.String("state", string(p.state)))
	p.notifyLocked()
	return p.snapshotLocked(), nil
}

// Resume загружает сессию вкладки из хранилища, если она еще не загружена.
// ErrSessionCorrupted означает, что хранилище очищено и нужно начать заново.
func (p *Player) Resume(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	if err := p.checkUsableLocked(); err != nil {
		p.mu.Unlock()
		return Snapshot{State: StateLoading}, err
	}
	if p.session != nil || p.inFlight {
		defer p.mu.Unlock()
		return p.snapshotLocked(), nil
	}
	p.mu.Unlock()

	sess, err := p.store.Load(ctx)
	if err != nil {
		if errors.Is(err, models.ErrSessionCorrupted) {
			p.logger.Warn("Discarded corrupted session, user must start over", zap.Error(err))
		}
		return p.Snapshot(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil && !p.inFlight {
		p.session = sess
		p.state = deriveState(sess)
		p.startPollingLocked()
		p.logger.Debug("Session resumed", zap.String("sessionID", sess.SessionID), zap.String("state", string(p.state)))
		p.notifyLocked()
	}
	return p.snapshotLocked(), nil
}

// Choose применяет выбор варианта id в текущей контрольной точке.
func (p *Player) Choose(ctx context.Context, id models.ChoiceID) (Snapshot, error) {
	p.mu.Lock()
	if err := p.checkUsableLocked(); err != nil {
		p.mu.Unlock()
		return p.Snapshot(), err
	}
	sess := p.session
	switch {
	case sess == nil:
		p.mu.Unlock()
		return p.Snapshot(), models.ErrNoSession
	case !sess.IsInteractive():
		p.mu.Unlock()
		return p.Snapshot(), models.ErrNotInteractive
	case sess.ReachedFinal:
		p.mu.Unlock()
		return p.Snapshot(), models.ErrSessionFinal
	case p.inFlight:
		p.mu.Unlock()
		return p.Snapshot(), models.ErrContinueInFlight
	}
	option, ok := sess.FindOption(id)
	if !ok {
		p.mu.Unlock()
		return p.Snapshot(), fmt.Errorf("%w: %q at checkpoint %d", models.ErrIllegalChoice, id, sess.CurrentCheckpoint())
	}

	// Опрос веток отменяется до отправки продолжения.
	// Выбор в текущей истории отменяет повтор неудавшегося старта.
	p.cancelPollLocked()
	p.inFlight = true
	p.pendingStart = nil
	req := models.ContinueRequest{
		SessionID:       sess.SessionID,
		CheckpointIndex: sess.CurrentCheckpoint(),
		ChoiceID:        id,
	}
	p.notifyLocked()
	p.mu.Unlock()

	log := p.logger.With(zap.String("sessionID", req.SessionID), zap.Int("checkpoint", req.CheckpointIndex), zap.String("choice", string(id)))
	log.Debug("Continuing story")
	res, err := p.api.ContinueStory(ctx, req)

	var next *models.Session
	if err == nil {
		next = sess.Clone()
		if applyErr := next.ApplyContinuation(option, res, p.now()); applyErr != nil {
			err = &clients.APIError{Op: clients.OpContinueStory, StatusCode: 200, Retryable: true, Err: applyErr}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if p.session != sess {
		// Сессию сбросили или заменили, пока запрос был в полете: ответ отбрасывается.
		log.Info("Discarding continuation for replaced session")
		p.notifyLocked()
		return p.snapshotLocked(), models.ErrSessionReplaced
	}
	if err == nil {
		err = p.store.Save(ctx, next)
	}
	if err != nil {
		log.Warn("Continuation failed", zap.Error(err))
		p.failLocked(err, id)
		return p.snapshotLocked(), err
	}

	p.session = next
	p.lastErr = nil
	p.failedChoice = ""
	p.state = deriveState(next)
	p.startPollingLocked()
	log.Info("Story continued",
		zap.Int("historyLen", len(next.Interactive.History)),
		zap.Bool("final", next.ReachedFinal),
		zap.String("state", string(p.state)),
	)
	p.notifyLocked()
	return p.snapshotLocked(), nil
}

// Retry выводит плеер из состояния ошибки: повторяет неудавшийся старт или выбор,
// либо перезапускает опрос веток.
func (p *Player) Retry(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	if err := p.checkUsableLocked(); err != nil {
		p.mu.Unlock()
		return p.Snapshot(), err
	}
	if p.state != StateError {
		defer p.mu.Unlock()
		return p.snapshotLocked(), models.ErrNothingToRetry
	}

	choice := p.failedChoice
	if choice == "" && p.pendingStart != nil {
		req := *p.pendingStart
		p.mu.Unlock()
		return p.Start(ctx, req)
	}

	p.lastErr = nil
	p.failedChoice = ""
	p.state = deriveState(p.session)
	if choice != "" {
		p.mu.Unlock()
		return p.Choose(ctx, choice)
	}

	p.startPollingLocked()
	p.notifyLocked()
	defer p.mu.Unlock()
	return p.snapshotLocked(), nil
}

// Reset удаляет сессию вкладки (пользователь начинает новую историю).
// Ответ старта или продолжения, который еще в полете, будет отброшен.
func (p *Player) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelPollLocked()
	p.epoch++
	if err := p.store.Clear(ctx); err != nil {
		return err
	}
	p.session = nil
	p.state = StateLoading
	p.lastErr = nil
	p.failedChoice = ""
	p.pendingStart = nil
	p.lastActivity = p.now()
	p.notifyLocked()
	return nil
}

// Close останавливает опрос веток (демонтаж представления) и отписывает слушателей.
func (p *Player) Close() {
	p.mu.Lock()
	p.closed = true
	p.cancelPollLocked()
	p.listeners = make(map[int]func(Snapshot))
	p.mu.Unlock()
	p.pollWG.Wait()
}

func (p *Player) checkUsableLocked() error {
	if p.closed {
		return models.ErrPlayerClosed
	}
	p.lastActivity = p.now()
	return nil
}

func (p *Player) failLocked(err error, choice models.ChoiceID) {
	p.lastErr = err
	p.failedChoice = choice
	p.state = StateError
	p.notifyLocked()
}

// deriveState вычисляет состояние по сессии.
func deriveState(sess *models.Session) State {
	switch {
	case sess == nil:
		return StateLoading
	case !sess.IsInteractive() || sess.ReachedFinal:
		return StateFinal
	case len(sess.Interactive.NextOptions) == 0:
		return StateAwaitingBranches
	default:
		return StateAwaitingChoice
	}
}

// cancelPollLocked отменяет текущий опрос и делает недействительными его результаты.
func (p *Player) cancelPollLocked() {
	p.pollGen++
	if p.pollCancel != nil {
		p.pollCancel()
		p.pollCancel = nil
	}
}

// startPollingLocked запускает опрос, если история интерактивна, не закончена и вариантов нет.
func (p *Player) startPollingLocked() {
	if p.closed || p.poller == nil || p.session == nil || !p.session.NeedsBranches() {
		return
	}
	p.cancelPollLocked()
	gen := p.pollGen
	ctx, cancel := context.WithCancel(context.Background())
	p.pollCancel = cancel
	sessionID := p.session.SessionID
	checkpoint := p.session.CurrentCheckpoint()

	p.pollWG.Add(1)
	go p.runPoll(ctx, gen, sessionID, checkpoint)
}

func (p *Player) runPoll(ctx context.Context, gen uint64, sessionID string, checkpoint int) {
	defer p.pollWG.Done()
	log := p.logger.With(zap.String("sessionID", sessionID), zap.Int("checkpoint", checkpoint))

	options, err := p.poller.Wait(ctx, sessionID, checkpoint)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.pollGen || ctx.Err() != nil {
		log.Debug("Discarding stale poll result")
		return
	}
	p.pollCancel = nil
	if err != nil {
		p.failLocked(err, "")
		return
	}
	if p.session == nil || p.session.SessionID != sessionID {
		return
	}

	next := p.session.Clone()
	applied, err := next.ApplyBranches(checkpoint, options, p.now())
	if err != nil {
		p.failLocked(err, "")
		return
	}
	if !applied {
		log.Debug("Poll result no longer matches session position, discarded")
		return
	}
	if err := p.store.Save(context.Background(), next); err != nil {
		p.failLocked(err, "")
		return
	}
	p.session = next
	p.state = deriveState(next)
	log.Info("Branches applied", zap.String("state", string(p.state)))
	p.notifyLocked()
}

func (p *Player) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        p.state,
		Session:      p.session.Clone(),
		Busy:         p.inFlight,
		LegalOptions: []models.ChoiceID{},
	}
	if p.lastErr != nil {
		snap.Error = clients.UserMessage(p.lastErr)
		snap.Retryable = clients.IsRetryable(p.lastErr)
	}
	// Пока ждет повтора неудавшийся старт, варианты прежней истории не предлагаются.
	if s := p.session; s != nil && s.IsInteractive() && !s.ReachedFinal && !p.inFlight && p.state != StateLoading && p.pendingStart == nil {
		for _, opt := range s.Interactive.NextOptions {
			snap.LegalOptions = append(snap.LegalOptions, opt.ID)
		}
		snap.CanChoose = len(snap.LegalOptions) > 0
	}
	return snap
}

// notifyLocked рассылает снимок слушателям. Слушатели не должны вызывать методы плеера.
func (p *Player) notifyLocked() {
	if len(p.listeners) == 0 {
		return
	}
	snap := p.snapshotLocked()
	for _, fn := range p.listeners {
		fn(snap)
	}
}
