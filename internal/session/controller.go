package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
)

const defaultHistoryLimit = 50

// Options configures a Controller.
type Options struct {
	// Welcome greets the user on mount, on restart and over an empty history.
	Welcome string
	// Apology replaces the reply when a send fails.
	Apology string
	// HistoryLimit is the page size used by Open and LoadOlder.
	HistoryLimit int
	// StaleAfter forces a reload on Open once the loaded history is older
	// than this. Zero disables age-based reloads.
	StaleAfter time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Controller owns one conversation and applies user actions to it.
// All state changes go through the controller; network calls run outside
// the lock and are not cancelled by Close or by the caller's context.
type Controller struct {
	exchanges ExchangeLog
	auth      AuthContext
	opts      Options
	logger    *slog.Logger

	mu    sync.Mutex
	state State

	loaded      bool
	stale       bool
	loadedAt    time.Time
	loadedToken string

	paged         bool
	total         int
	nextOffset    int
	sentSinceLoad int

	epoch uint64
	seq   uint64

	listeners  map[int]func(State)
	listenerID int
}

// NewController creates a controller whose view holds only the welcome message.
func NewController(exchanges ExchangeLog, auth AuthContext, opts Options) *Controller {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		exchanges: exchanges,
		auth:      auth,
		opts:      opts,
		logger:    logger.With("component", "session"),
		state:     NewState(opts.Welcome),
		listeners: make(map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ReplaceAll(c.state.Messages)
}

// Epoch counts restarts. It starts at zero and only grows.
func (c *Controller) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Subscribe registers fn to receive every new state. The returned func
// removes the listener.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.listenerID
	c.listenerID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// MarkStale makes the next Open reload history.
func (c *Controller) MarkStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Open shows the widget and, for a signed-in user, loads history the first
// time or when the loaded copy is stale.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	c.state = c.state.SetOpen(true)
	load := c.auth.IsAuthenticated() && c.needsHistoryLocked()
	c.commitLocked()

	if !load {
		return
	}
	if err := c.LoadHistory(ctx, c.opts.HistoryLimit, 0); err != nil && !errors.Is(err, ErrBusy) {
		c.logger.Debug("history not refreshed on open", "error", err)
	}
}

// Close hides the widget. In-flight requests keep running.
func (c *Controller) Close() {
	c.mu.Lock()
	c.state = c.state.SetOpen(false)
	c.commitLocked()
}

// Send appends the user's text, asks the exchange log for a reply and
// appends the reply, or the apology when the request fails. Only the
// precondition failures ErrAuthRequired, ErrEmptyMessage and ErrBusy are
// returned; none of them changes the state.
func (c *Controller) Send(ctx context.Context, text string) error {
	if !c.auth.IsAuthenticated() {
		return ErrAuthRequired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.state.IsLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.seq++
	local := "local-" + strconv.FormatUint(c.seq, 10)
	userID, botID := local+":u", local+":b"
	next, _ := c.state.AppendUser(userID, text)
	c.state = next.SetLoading(true)
	token := c.auth.Token()
	c.commitLocked()

	reply, err := c.exchanges.Send(context.WithoutCancel(ctx), token, text)

	c.mu.Lock()
	if err != nil {
		c.logger.Warn("send failed", "error", err)
		if errors.Is(err, ErrUnanswered) {
			c.sentSinceLoad++
		}
		c.state = c.state.AppendBot(botID, c.opts.Apology, userID).SetLoading(false)
		c.commitLocked()
		return nil
	}

	c.sentSinceLoad++
	if ex := (chat.Exchange{ID: reply.ChatID}); reply.ChatID != 0 && c.state.indexOf(ex.UserMessageID()) < 0 {
		if next := c.state.Rename(userID, ex.UserMessageID()); next.indexOf(userID) < 0 {
			c.state = next
			userID, botID = ex.UserMessageID(), ex.BotMessageID()
		}
	}
	c.state = c.state.AppendBot(botID, reply.Response, userID).SetLoading(false)
	c.commitLocked()
	return nil
}

// LoadHistory replaces the view with one page of the exchange log. An
// empty page shows only the welcome message. On failure the view is left
// as it was and the error is logged and returned.
func (c *Controller) LoadHistory(ctx context.Context, limit, offset int) error {
	if !c.auth.IsAuthenticated() {
		return ErrAuthRequired
	}

	c.mu.Lock()
	if c.state.IsLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = c.state.SetLoading(true)
	token := c.auth.Token()
	epoch := c.epoch
	c.commitLocked()

	page, err := c.exchanges.FetchHistory(context.WithoutCancel(ctx), token, limit, offset)

	c.mu.Lock()
	c.state = c.state.SetLoading(false)
	if err != nil {
		c.commitLocked()
		c.logger.Warn("load history failed", "limit", limit, "offset", offset, "error", err)
		return err
	}
	if epoch != c.epoch {
		// restarted while the page was in flight; keep the fresh view
		c.commitLocked()
		return nil
	}

	messages := Flatten(page.Items)
	if len(messages) == 0 {
		messages = []chat.Message{WelcomeMessage(c.opts.Welcome)}
	}
	c.state = c.state.ReplaceAll(messages)
	c.markLoadedLocked(token)
	c.paged = true
	c.total = page.Total
	c.nextOffset = offset + len(page.Items)
	c.sentSinceLoad = 0
	c.commitLocked()
	return nil
}

// LoadOlder prepends the next page of older exchanges. It reports whether
// still older exchanges remain on the server.
func (c *Controller) LoadOlder(ctx context.Context) (bool, error) {
	if !c.auth.IsAuthenticated() {
		return false, ErrAuthRequired
	}

	c.mu.Lock()
	if !c.paged || c.nextOffset >= c.total {
		c.mu.Unlock()
		return false, nil
	}
	if c.state.IsLoading {
		c.mu.Unlock()
		return false, ErrBusy
	}
	// replies sent since the last load sit in front of the window
	offset := c.nextOffset + c.sentSinceLoad
	limit := c.opts.HistoryLimit
	c.state = c.state.SetLoading(true)
	token := c.auth.Token()
	epoch := c.epoch
	c.commitLocked()

	page, err := c.exchanges.FetchHistory(context.WithoutCancel(ctx), token, limit, offset)

	c.mu.Lock()
	c.state = c.state.SetLoading(false)
	if err != nil {
		c.commitLocked()
		c.logger.Warn("load older history failed", "offset", offset, "error", err)
		return false, err
	}
	if epoch != c.epoch {
		c.commitLocked()
		return false, nil
	}

	c.state = c.state.ReplaceAll(Prepend(Flatten(page.Items), c.state.Messages))
	c.nextOffset += len(page.Items)
	c.total = page.Total - c.sentSinceLoad
	more := len(page.Items) > 0 && c.nextOffset < c.total
	c.commitLocked()
	return more, nil
}

// Restart resets the view to the welcome message and starts a new epoch.
// Server history is untouched and no reload happens on the next Open.
func (c *Controller) Restart() {
	c.mu.Lock()
	c.epoch++
	c.state = c.state.ReplaceAll([]chat.Message{WelcomeMessage(c.opts.Welcome)})
	c.markLoadedLocked(c.auth.Token())
	c.paged = false
	c.total = 0
	c.nextOffset = 0
	c.sentSinceLoad = 0
	c.commitLocked()
}

// Delete removes one exchange from the server log and from the view.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if !c.auth.IsAuthenticated() {
		return ErrAuthRequired
	}
	if err := c.exchanges.DeleteExchange(ctx, c.auth.Token(), id); err != nil {
		return err
	}

	ex := chat.Exchange{ID: id}
	c.mu.Lock()
	before := c.state.Len()
	c.state = c.state.Remove(ex.UserMessageID(), ex.BotMessageID())
	if c.state.Len() != before && c.paged {
		c.nextOffset--
		c.total--
	}
	if c.state.Len() == 0 {
		c.state = c.state.ReplaceAll([]chat.Message{WelcomeMessage(c.opts.Welcome)})
	}
	c.commitLocked()
	return nil
}

func (c *Controller) needsHistoryLocked() bool {
	switch {
	case !c.loaded, c.stale:
		return true
	case c.loadedToken != c.auth.Token():
		return true
	case c.opts.StaleAfter > 0 && c.opts.Now().Sub(c.loadedAt) > c.opts.StaleAfter:
		return true
	}
	return false
}

func (c *Controller) markLoadedLocked(token string) {
	c.loaded = true
	c.stale = false
	c.loadedAt = c.opts.Now()
	c.loadedToken = token
}

// commitLocked releases the lock and hands the new state to listeners.
func (c *Controller) commitLocked() {
	snapshot := c.state
	listeners := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
