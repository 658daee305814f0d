package chatbot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sharpie78/nova/api"
)

// Send precondition errors. Nothing is sent or changed when they are returned.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoModel      = errors.New("no model selected")
	ErrTurnInFlight = errors.New("previous message is still being answered")
)

// DefaultPersistTimeout bounds each background persist chain
const DefaultPersistTimeout = 30 * time.Second

// AgentFallbackNotice is shown when a failed agent request is retried as a plain chat
const AgentFallbackNotice = "[agent failed] switching to direct chat..."

// Dispatcher runs user turns against the backend
type Dispatcher struct {
	session    *Session
	reconciler *Reconciler
	memory     *MemorySearch
	sink       RenderSink
	log        *zap.Logger

	busy atomic.Bool
	wg   sync.WaitGroup

	// persisted is closed when the most recently queued persist has finished
	mu        sync.Mutex
	persisted chan struct{}

	// PersistTimeout bounds each background persist chain
	PersistTimeout time.Duration
}

// NewDispatcher creates a new Dispatcher rendering to sink
func NewDispatcher(session *Session, sink RenderSink, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Dispatcher{
		session:        session,
		reconciler:     NewReconciler(session.Client(), log),
		memory:         NewMemorySearch(session.Client(), log),
		sink:           sink,
		log:            log,
		PersistTimeout: DefaultPersistTimeout,
	}
}

// Send runs one turn for text with the selected model. It appends the user message and
// at most one assistant message to the transcript. The agent path is tried first when
// enabled; any failure there falls back to the streaming path. A failure on the
// streaming path is shown once through the sink and returned.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	p := d.session.Prefs()
	if p.Model == "" {
		return ErrNoModel
	}
	if !d.busy.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	defer d.busy.Store(false)

	t := d.session.Transcript()

	// bring core memory up to date before anything is added
	var prefix []api.Message
	if p.ChatHistory {
		var err error
		if prefix, err = d.reconciler.Reconcile(ctx, t); err != nil {
			d.log.Warn("could not reconcile core memory", zap.Error(err))
			prefix = nil
		}
	}

	user := api.Message{Role: api.RoleUser, Content: text}
	t.Append(user)
	d.sink.AppendMessage(user, nil)
	d.persist(ctx, user)

	// recalled memories must be in the transcript before the payload is built
	if p.ChatHistory {
		d.memory.Inject(ctx, t, text)
	}

	d.sink.ShowThinking()

	if p.AgentEnabled {
		if d.sendAgent(ctx, p, text) {
			return nil
		}
	}

	return d.sendDirect(ctx, p, prefix)
}

func (d *Dispatcher) sendAgent(ctx context.Context, p Prefs, text string) bool {
	resp, err := d.session.Client().Agent(ctx, AgentRequest{
		Model:    p.Model,
		Message:  text,
		ToolHint: p.AgentHint,
		ChatID:   d.session.CurrentChatID(),
		Username: p.Username,
	})
	if err != nil {
		d.log.Warn("agent failed, falling back to chat", zap.String("model", p.Model), zap.Error(err))
		d.sink.ShowNotice(AgentFallbackNotice)
		return false
	}

	d.reply(ctx, p, api.Message{Role: api.RoleAssistant, Content: resp.Answer}, &AgentMeta{
		Badge:   AgentBadge(resp.ToolsUsed),
		Sources: resp.Sources,
	})
	return true
}

func (d *Dispatcher) sendDirect(ctx context.Context, p Prefs, prefix []api.Message) error {
	msgs := MessagesToSend(prefix, d.session.Transcript().Messages())

	chunks, err := d.session.Client().ChatStream(ctx, p.Model, msgs)
	if err != nil {
		d.log.Error("chat request failed", zap.String("model", p.Model), zap.Error(err))
		d.sink.ShowError("Error: " + errorText(err))
		return err
	}

	dec, err := Decode(ctx, chunks, d.sink.UpdateStream)
	if err != nil {
		d.log.Error("chat stream failed", zap.String("model", p.Model), zap.Error(err))
		d.sink.ShowError("Error: " + errorText(err))
		return err
	}
	d.sink.EndStream()

	if thinking := strings.TrimSpace(dec.Thinking()); thinking != "" {
		d.sink.ShowRationale(thinking)
	}

	visible := strings.TrimSpace(dec.Visible())
	if visible == "" {
		d.log.Debug("stream produced no visible text")
		return nil
	}

	d.reply(ctx, p, api.Message{Role: api.RoleAssistant, Content: visible}, nil)
	return nil
}

// reply records the single assistant message of a turn
func (d *Dispatcher) reply(ctx context.Context, p Prefs, msg api.Message, meta *AgentMeta) {
	t := d.session.Transcript()
	t.Append(msg)
	if meta != nil {
		d.sink.AppendMessage(msg, meta)
	}
	d.persist(ctx, msg)

	if p.ChatHistory {
		d.memory.Inject(ctx, t, msg.Content)
	}
}

// persist saves msg in the background, after every message queued before it. It
// outlives ctx's cancellation but not PersistTimeout.
func (d *Dispatcher) persist(ctx context.Context, msg api.Message) {
	if d.session.CurrentChatID() == "" {
		return
	}

	d.mu.Lock()
	prev := d.persisted
	done := make(chan struct{})
	d.persisted = done
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(ctx, d.PersistTimeout)
		defer cancel()

		if err := d.session.PersistMessage(ctx, msg); err != nil {
			d.log.Warn("could not persist message", zap.String("role", string(msg.Role)), zap.Error(err))
		}
	}()
}

// Wait blocks until every background persist has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func errorText(err error) string {
	var e *api.Error
	if errors.As(err, &e) {
		return e.Description
	}
	return err.Error()
}
