package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"gopkg.in/telebot.v3"

	"vehicle-info-bot/config"
	"vehicle-info-bot/database"
	"vehicle-info-bot/export"
	"vehicle-info-bot/ledger"
	"vehicle-info-bot/middleware"
	"vehicle-info-bot/models"
	"vehicle-info-bot/vehicle"
)

const (
	testOwner   = int64(999)
	testChannel = "@vehicleinfochannel"
)

type sentMessage struct {
	what interface{}
	opts []interface{}
}

func (m sentMessage) text() string {
	s, _ := m.what.(string)
	return s
}

type fakeContext struct {
	telebot.Context

	sender   *telebot.User
	chat     *telebot.Chat
	message  *telebot.Message
	callback *telebot.Callback

	sent      []sentMessage
	edits     []string
	responded bool
}

func command(userID int64, text string) *fakeContext {
	chat := &telebot.Chat{ID: userID, Type: telebot.ChatPrivate}
	payload := ""
	if i := strings.IndexByte(text, ' '); i >= 0 {
		payload = strings.TrimSpace(text[i+1:])
	}
	return &fakeContext{
		sender:  &telebot.User{ID: userID, FirstName: "Ann"},
		chat:    chat,
		message: &telebot.Message{ID: 1, Chat: chat, Text: text, Payload: payload},
	}
}

func callback(userID int64) *fakeContext {
	chat := &telebot.Chat{ID: userID, Type: telebot.ChatPrivate}
	return &fakeContext{
		sender:   &telebot.User{ID: userID, FirstName: "Ann"},
		chat:     chat,
		callback: &telebot.Callback{ID: "cb", Data: middleware.VerifyUnique},
	}
}

func (c *fakeContext) Sender() *telebot.User       { return c.sender }
func (c *fakeContext) Chat() *telebot.Chat         { return c.chat }
func (c *fakeContext) Message() *telebot.Message   { return c.message }
func (c *fakeContext) Callback() *telebot.Callback { return c.callback }

func (c *fakeContext) Text() string {
	if c.message == nil {
		return ""
	}
	return c.message.Text
}

func (c *fakeContext) Args() []string {
	if c.message == nil || c.message.Payload == "" {
		return nil
	}
	return strings.Fields(c.message.Payload)
}

func (c *fakeContext) Send(what interface{}, opts ...interface{}) error {
	c.sent = append(c.sent, sentMessage{what: what, opts: opts})
	return nil
}

func (c *fakeContext) Edit(what interface{}, opts ...interface{}) error {
	s, _ := what.(string)
	c.edits = append(c.edits, s)
	return nil
}

func (c *fakeContext) Respond(...*telebot.CallbackResponse) error {
	c.responded = true
	return nil
}

func (c *fakeContext) texts() []string {
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, m.text())
	}
	return out
}

func (c *fakeContext) lastText() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1].text()
}

// fakeAPI records bot calls made outside of a reply.
type fakeAPI struct {
	mu      sync.Mutex
	nextID  int
	sent    map[string][]string
	edits   []string
	deleted []string
	failFor map[string]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sent: make(map[string][]string), failFor: make(map[string]bool)}
}

func (a *fakeAPI) Send(to telebot.Recipient, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := to.Recipient()
	if a.failFor[r] {
		return nil, errors.New("bot was blocked by the user")
	}
	s, _ := what.(string)
	a.sent[r] = append(a.sent[r], s)
	a.nextID++
	return &telebot.Message{ID: a.nextID, Chat: &telebot.Chat{}, Text: s}, nil
}

func (a *fakeAPI) Edit(msg telebot.Editable, what interface{}, _ ...interface{}) (*telebot.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, _ := what.(string)
	a.edits = append(a.edits, s)
	return &telebot.Message{Text: s}, nil
}

func (a *fakeAPI) Delete(msg telebot.Editable) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, _ := msg.MessageSig()
	a.deleted = append(a.deleted, id)
	return nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

type memberAPI struct {
	mock.Mock
}

func (m *memberAPI) ChatMemberOf(chat, user telebot.Recipient) (*telebot.ChatMember, error) {
	args := m.Called(chat.Recipient(), user.Recipient())
	cm, _ := args.Get(0).(*telebot.ChatMember)
	return cm, args.Error(1)
}

type fakeSpam struct {
	reset []int64
}

func (s *fakeSpam) Reset(userID int64) { s.reset = append(s.reset, userID) }

type lookupFunc func(ctx context.Context, plate string) (vehicle.Record, error)

func (f lookupFunc) Lookup(ctx context.Context, plate string) (vehicle.Record, error) {
	return f(ctx, plate)
}

type fakeExporter struct {
	rows []export.Row
	err  error
}

func (e *fakeExporter) WriteUsers(_ context.Context, rows []export.Row) error {
	e.rows = rows
	return e.err
}

// router collects registered endpoints with their middleware applied.
type router map[string]telebot.HandlerFunc

func (r router) Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc) {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	r[endpoint.(string)] = h
}

type env struct {
	handler  *Handler
	routes   router
	ledger   *ledger.Ledger
	users    *database.JSONFile[models.User]
	members  *memberAPI
	api      *fakeAPI
	exporter *fakeExporter
	spam     *fakeSpam
	sleeps   []time.Duration
}

func newEnv(t *testing.T, vehicles VehicleLookup) *env {
	t.Helper()

	cfg := &config.Config{
		ForceJoinChannel: testChannel,
		ChannelLink:      "https://t.me/vehicleinfochannel",
		DeveloperHandle:  "@xunarc",
		OwnerID:          testOwner,
		InitialCredits:   3,
		CreditsPerCheck:  1,
		CodeValues:       []int64{5, 10},
		BroadcastDelay:   50 * time.Millisecond,
	}

	dir := t.TempDir()
	users := database.NewJSONFile[models.User](filepath.Join(dir, "users_data.json"))
	codes := database.NewJSONFile[models.RedeemCode](filepath.Join(dir, "redeem_codes.json"))

	n := 0
	l := ledger.New(users, codes, ledger.Options{
		InitialCredits:  cfg.InitialCredits,
		CreditsPerCheck: cfg.CreditsPerCheck,
		CodeValues:      cfg.CodeValues,
		OwnerID:         cfg.OwnerID,
		GenerateCode: func() (string, error) {
			n++
			return []string{"CODE0001", "CODE0002", "CODE0003"}[n-1], nil
		},
	})

	members := &memberAPI{}
	e := &env{
		routes:   router{},
		ledger:   l,
		users:    users,
		members:  members,
		api:      newFakeAPI(),
		exporter: &fakeExporter{},
		spam:     &fakeSpam{},
	}

	e.handler = New(Deps{
		Config:      cfg,
		Ledger:      l,
		Gate:        middleware.NewGate(members, cfg.ForceJoinChannel, cfg.ChannelLink),
		Vehicles:    vehicles,
		API:         e.api,
		Exporter:    e.exporter,
		Spam:        e.spam,
		BotUsername: "VehicleInfoBot",
		Now:         func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) },
		Sleep:       func(d time.Duration) { e.sleeps = append(e.sleeps, d) },
	})
	e.handler.Register(e.routes)
	return e
}

func (e *env) joined(userID int64) {
	e.members.On("ChatMemberOf", testChannel, itoa(userID)).
		Return(&telebot.ChatMember{Role: telebot.Member}, nil)
}

func (e *env) run(t *testing.T, endpoint string, c *fakeContext) {
	t.Helper()
	h, ok := e.routes[endpoint]
	if !ok {
		t.Fatalf("no handler for %q", endpoint)
	}
	if err := h(c); err != nil {
		t.Fatalf("%s returned %v", endpoint, err)
	}
}

func (e *env) user(t *testing.T, id int64) (models.User, bool) {
	t.Helper()
	u, ok, err := e.users.Get(context.Background(), itoa(id))
	if err != nil {
		t.Fatal(err)
	}
	return u, ok
}
