// Package conversation owns the live chat state and coordinates the store, the
// command interpreter, the chat client and speech. Every front-end drives a Session.
package conversation

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/command"
	"github.com/hpungsan/banter/internal/errors"
	"github.com/hpungsan/banter/internal/speech"
	"github.com/hpungsan/banter/internal/store"
)

// Sender delivers one user turn to the assistant backend.
type Sender interface {
	Send(ctx context.Context, message, personality string) (string, error)
}

// Outcome is the result of Submit.
type Outcome int

const (
	// OutcomeIgnored means the draft was blank or the send was rejected; nothing changed.
	OutcomeIgnored Outcome = iota
	// OutcomeCommand means a local command ran and its confirmation was appended.
	OutcomeCommand
	// OutcomeSent means a user turn and its reply (or the fallback) were appended.
	OutcomeSent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommand:
		return "command"
	case OutcomeSent:
		return "sent"
	default:
		return "ignored"
	}
}

// Options configures a Session. Store and Client are required.
type Options struct {
	Store         *store.Store
	Client        Sender
	Speaker       speech.Speaker
	Listener      speech.Listener
	Personalities *chat.Personalities
	// Personality is the initial persona id; unknown ids fall back to the first persona.
	Personality string
	Logger      *zap.Logger
	Now         func() time.Time
}

// Session is the single owner of conversation state. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	store         *store.Store
	client        Sender
	speaker       speech.Speaker
	listener      speech.Listener
	personalities *chat.Personalities
	logger        *zap.Logger
	now           func() time.Time

	active      string
	chats       chat.Chats
	draft       string
	inFlight    bool
	typing      bool
	personality string
	search      string
	reminder    string
	todos       []string

	subs    map[int]chan struct{}
	nextSub int
}

// Open loads persisted state and returns a ready Session along with any load warnings.
// A first run (or an unreadable chats value) writes the full loaded state back immediately,
// so the store always holds all three keys.
func Open(ctx context.Context, opts Options) (*Session, []*errors.BanterError, error) {
	res, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	s := New(res.State, opts)
	for _, w := range res.Warnings {
		s.logger.Warn("stored value replaced with default", zap.String("code", string(w.Code)), zap.String("message", w.Message))
	}
	if res.Seeded {
		if err := opts.Store.Save(ctx, res.State); err != nil {
			return nil, nil, err
		}
	}
	return s, res.Warnings, nil
}

// New builds a Session over already-loaded state.
func New(state *store.PersistedState, opts Options) *Session {
	s := &Session{
		store:         opts.Store,
		client:        opts.Client,
		speaker:       opts.Speaker,
		listener:      opts.Listener,
		personalities: opts.Personalities,
		logger:        opts.Logger,
		now:           opts.Now,
		active:        chat.DefaultCategoryID,
		subs:          make(map[int]chan struct{}),
	}
	if s.speaker == nil {
		s.speaker = speech.Nop{}
	}
	if s.listener == nil {
		s.listener = speech.Nop{}
	}
	if s.personalities == nil {
		s.personalities = chat.NewPersonalities(nil)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	if state == nil {
		state = store.DefaultState(s.now())
	}
	s.chats = state.Chats.Clone()
	if s.chats == nil {
		s.chats = store.DefaultChats(s.now())
	}
	s.reminder = state.Reminder
	s.todos = append([]string{}, state.Todos...)

	if p, err := s.personalities.Lookup(opts.Personality); err == nil {
		s.personality = p.ID
	} else {
		s.personality = s.personalities.All()[0].ID
	}
	return s
}

// ActiveCategory returns the selected category id.
func (s *Session) ActiveCategory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SelectCategory switches the active category. The draft and in-flight state are unaffected.
func (s *Session) SelectCategory(id string) error {
	cat, err := chat.LookupCategory(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != cat.ID {
		s.active = cat.ID
		s.notifyLocked()
	}
	return nil
}

// AppendMessage appends msg to category, persists the full history and speaks assistant messages.
// The message stays appended even when persisting fails; the error is returned.
func (s *Session) AppendMessage(ctx context.Context, category string, msg chat.Message) error {
	cat, err := chat.LookupCategory(category)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.appendLocked(ctx, cat.ID, msg)
	s.notifyLocked()
	return err
}

func (s *Session) appendLocked(ctx context.Context, category string, msg chat.Message) error {
	s.chats[category] = append(s.chats[category], msg)

	err := s.store.SaveChats(ctx, s.chats)
	if err != nil {
		s.logger.Error("persist chats failed", zap.String("category", category), zap.Error(err))
	}

	if msg.Role == chat.RoleAssistant {
		s.speaker.Speak(msg.Content)
	}
	return err
}

// SetDraft replaces the pending input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
	s.notifyLocked()
}

// ClearDraft empties the pending input text.
func (s *Session) ClearDraft() {
	s.SetDraft("")
}

// Draft returns the pending input text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// BeginSend marks a backend call as outstanding. It returns false and changes nothing when a
// call is already outstanding or the draft is blank.
func (s *Session) BeginSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight || chat.IsBlank(s.draft) {
		return false
	}
	s.beginLocked()
	return true
}

func (s *Session) beginLocked() {
	s.inFlight = true
	s.typing = true
	s.notifyLocked()
}

// EndSend clears the outstanding-call markers.
func (s *Session) EndSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *Session) endLocked() {
	s.inFlight = false
	s.typing = false
	s.notifyLocked()
}

// InFlight reports whether a backend call is outstanding.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// FilteredView yields the messages of category whose content contains term, ignoring case.
// An empty term yields the whole history. The history is captured when FilteredView is called;
// ranging over the result again yields the same messages. Unknown categories yield nothing.
func (s *Session) FilteredView(category, term string) iter.Seq[chat.Message] {
	s.mu.Lock()
	msgs := s.chats[category]
	s.mu.Unlock()
	return Filter(msgs, term)
}

// Filter yields the messages of msgs whose content contains term, ignoring case.
func Filter(msgs []chat.Message, term string) iter.Seq[chat.Message] {
	needle := strings.ToLower(term)
	return func(yield func(chat.Message) bool) {
		for _, m := range msgs {
			if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

// Personality returns the selected persona id.
func (s *Session) Personality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personality
}

// Personalities returns the persona table.
func (s *Session) Personalities() *chat.Personalities {
	return s.personalities
}

// SetPersonality selects a persona for subsequent sends.
func (s *Session) SetPersonality(id string) error {
	p, err := s.personalities.Lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personality = p.ID
	s.notifyLocked()
	return nil
}

// CyclePersonality selects the next persona and returns its id.
func (s *Session) CyclePersonality() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personality = s.personalities.Next(s.personality)
	s.notifyLocked()
	return s.personality
}

// Search returns the current search term.
func (s *Session) Search() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search
}

// SetSearch sets the filter term used by renderers.
func (s *Session) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = term
	s.notifyLocked()
}

// Reminder returns the stored reminder text.
func (s *Session) Reminder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminder
}

// Todos returns a copy of the todo list.
func (s *Session) Todos() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.todos...)
}

// Submit runs the send flow on the current draft.
//
// A blank draft is ignored. A draft submitted while a call is outstanding fails with IN_FLIGHT.
// Commands are answered locally. Anything else is appended as a user turn and sent; the
// reply, or the unreachable-server text, lands in the category the turn was sent from.
func (s *Session) Submit(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	outcome, _, err := s.submitLocked(ctx, s.draft, s.active, true)
	return outcome, err
}

// Send sets the draft to text and submits it.
func (s *Session) Send(ctx context.Context, text string) (Outcome, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return OutcomeIgnored, errors.NewInFlight()
	}
	s.draft = text
	outcome, _, err := s.submitLocked(ctx, text, s.active, true)
	return outcome, err
}

// SendTo submits text to category in one step, leaving the active category and the draft
// alone. A non-empty personality is selected first and stays selected. It returns the
// assistant message appended for text: the command confirmation, the reply, or the fallback.
func (s *Session) SendTo(ctx context.Context, category, personality, text string) (Outcome, string, error) {
	cat, err := chat.LookupCategory(category)
	if err != nil {
		return OutcomeIgnored, "", err
	}
	personaID := ""
	if personality != "" {
		p, err := s.personalities.Lookup(personality)
		if err != nil {
			return OutcomeIgnored, "", err
		}
		personaID = p.ID
	}

	s.mu.Lock()
	if chat.IsBlank(text) {
		s.mu.Unlock()
		return OutcomeIgnored, "", nil
	}
	if s.inFlight {
		s.mu.Unlock()
		return OutcomeIgnored, "", errors.NewInFlight()
	}
	if personaID != "" && personaID != s.personality {
		s.personality = personaID
		s.notifyLocked()
	}
	return s.submitLocked(ctx, text, cat.ID, false)
}

// submitLocked runs the send flow for text in category. It is entered with s.mu held and
// returns with it released. fromDraft clears the draft once text is accepted.
func (s *Session) submitLocked(ctx context.Context, text, category string, fromDraft bool) (Outcome, string, error) {
	if chat.IsBlank(text) {
		s.mu.Unlock()
		return OutcomeIgnored, "", nil
	}
	if s.inFlight {
		s.mu.Unlock()
		return OutcomeIgnored, "", errors.NewInFlight()
	}

	res, err := command.Interpret(ctx, text, notebook{s})
	if err != nil {
		s.mu.Unlock()
		return OutcomeIgnored, "", err
	}
	if res.Handled {
		s.logger.Info("command handled", zap.String("kind", res.Kind.String()), zap.String("category", category))
		_ = s.appendLocked(ctx, category, chat.NewMessage(chat.RoleAssistant, res.Reply, s.now()))
		if fromDraft {
			s.draft = ""
		}
		s.notifyLocked()
		s.mu.Unlock()
		return OutcomeCommand, res.Reply, nil
	}

	_ = s.appendLocked(ctx, category, chat.NewMessage(chat.RoleUser, text, s.now()))
	if fromDraft {
		s.draft = ""
	}
	instruction := ""
	if p, err := s.personalities.Lookup(s.personality); err == nil {
		instruction = p.Instruction
	}
	s.beginLocked()
	s.mu.Unlock()

	reply, err := s.client.Send(ctx, text, instruction)
	if err != nil {
		s.logger.Warn("chat send failed", zap.String("category", category), zap.Error(err))
		reply = chat.UnreachableText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.appendLocked(context.WithoutCancel(ctx), category, chat.NewMessage(chat.RoleAssistant, reply, s.now()))
	s.endLocked()
	return OutcomeSent, reply, nil
}

// DictationAvailable reports whether Dictate can capture speech.
func (s *Session) DictationAvailable() bool {
	return s.listener.Available()
}

// Dictate captures one utterance into the draft. Without a listener it does nothing.
// An empty utterance leaves the draft unchanged.
func (s *Session) Dictate(ctx context.Context) error {
	if !s.listener.Available() {
		return nil
	}
	text, err := s.listener.Listen(ctx)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	s.SetDraft(text)
	return nil
}

// State is a point-in-time copy of the session for renderers.
type State struct {
	ActiveCategory string
	Chats          chat.Chats
	Draft          string
	InFlight       bool
	Typing         bool
	Personality    string
	Search         string
	Reminder       string
	Todos          []string
}

// Messages returns the active category's history.
func (st State) Messages() []chat.Message {
	return st.Chats[st.ActiveCategory]
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ActiveCategory: s.active,
		Chats:          s.chats.Clone(),
		Draft:          s.draft,
		InFlight:       s.inFlight,
		Typing:         s.typing,
		Personality:    s.personality,
		Search:         s.search,
		Reminder:       s.reminder,
		Todos:          append([]string{}, s.todos...),
	}
}

// Subscribe returns a channel that receives a value after state changes, and a function that
// ends the subscription. Notifications coalesce; receivers should re-read Snapshot.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *Session) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// notebook applies command side effects. Its methods run with s.mu held.
type notebook struct {
	s *Session
}

func (n notebook) SetReminder(ctx context.Context, text string) error {
	if err := n.s.store.SaveReminder(ctx, text); err != nil {
		return err
	}
	n.s.reminder = text
	return nil
}

func (n notebook) AddTodo(ctx context.Context, text string) error {
	todos := append(append([]string{}, n.s.todos...), text)
	if err := n.s.store.SaveTodos(ctx, todos); err != nil {
		return err
	}
	n.s.todos = todos
	return nil
}
