package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tombot/internal/core/domain"
	"tombot/internal/core/port"
)

type sentMessage struct {
	to   string
	body string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeTransport) Send(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func (f *fakeTransport) Acknowledge(context.Context, domain.Message) error {
	return nil
}

type fakeRemote struct {
	sent []sentMessage
	err  error
}

func (f *fakeRemote) RemoteSend(_ context.Context, recipient, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: recipient, body: body})
	return nil
}

type fakeAuth map[string]bool

func (f fakeAuth) IsAdmin(_ context.Context, address string) bool {
	return f[address]
}

type cronJob struct {
	callback string
	args     []string
	spec     string
}

type fakeScheduler struct {
	funcs   map[string]port.JobFunc
	cron    map[string]cronJob
	removed []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{funcs: make(map[string]port.JobFunc), cron: make(map[string]cronJob)}
}

func (f *fakeScheduler) RegisterFunc(name string, fn port.JobFunc) {
	f.funcs[name] = fn
}

func (f *fakeScheduler) ScheduleOnce(context.Context, string, string, []string, time.Time) error {
	return nil
}

func (f *fakeScheduler) ScheduleCron(_ context.Context, id, callback string, args []string, spec string, _ bool) error {
	f.cron[id] = cronJob{callback: callback, args: args, spec: spec}
	return nil
}

func (f *fakeScheduler) Remove(_ context.Context, id string) error {
	if _, ok := f.cron[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(f.cron, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeScheduler) Start(context.Context) error {
	return nil
}

func (f *fakeScheduler) Shutdown(context.Context) error {
	return nil
}

// fakeUsers is an in-memory user store with the matching rules of the
// sqlite store.
type fakeUsers struct {
	users  []*domain.User
	nicks  []domain.Nick
	nextID int64
}

func (f *fakeUsers) add(address, nick string) *domain.User {
	f.nextID++
	u := &domain.User{ID: f.nextID, Address: address, PrimaryNick: nick, Timeout: domain.DefaultTimeout}
	f.users = append(f.users, u)
	return u
}

func (f *fakeUsers) find(pred func(*domain.User) bool) (*domain.User, error) {
	for _, u := range f.users {
		if pred(u) {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) ResolveAliasToAddress(_ context.Context, alias string) (string, error) {
	alias = strings.ToLower(alias)
	if u, err := f.find(func(u *domain.User) bool { return u.PrimaryNick == alias }); err == nil {
		return u.Address, nil
	}
	for _, n := range f.nicks {
		if n.Name == alias {
			return n.Address, nil
		}
	}
	return "", domain.ErrNickNotFound
}

func (f *fakeUsers) ResolveAddressToAlias(_ context.Context, address string) (string, error) {
	u, err := f.find(func(u *domain.User) bool { return u.Address == address && u.PrimaryNick != "" })
	if err != nil {
		return "", err
	}
	return u.PrimaryNick, nil
}

func (f *fakeUsers) User(_ context.Context, address string) (domain.User, error) {
	u, err := f.find(func(u *domain.User) bool { return u.Address == address })
	if err != nil {
		return domain.User{}, err
	}
	return *u, nil
}

func (f *fakeUsers) LookupUser(_ context.Context, idOrNick string) (domain.User, error) {
	id, convErr := strconv.ParseInt(idOrNick, 10, 64)
	u, err := f.find(func(u *domain.User) bool {
		if convErr == nil {
			return u.ID == id
		}
		return u.PrimaryNick == strings.ToLower(idOrNick)
	})
	if err != nil {
		return domain.User{}, err
	}
	return *u, nil
}

func (f *fakeUsers) NamelessSeen(context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range f.users {
		if u.PrimaryNick == "" && u.LastMessage != "" {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) Birthdays(context.Context) ([]domain.User, error) {
	var out []domain.User
	for _, u := range f.users {
		if u.Birthday != "" && u.PrimaryNick != "" {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) RegisterUser(_ context.Context, id int64, nick string) error {
	nick, err := domain.NormalizeNick(nick)
	if err != nil {
		return err
	}
	if _, err := f.find(func(u *domain.User) bool { return u.PrimaryNick == nick }); err == nil {
		return domain.ErrNickTaken
	}
	u, err := f.find(func(u *domain.User) bool { return u.ID == id })
	if err != nil {
		return err
	}
	u.PrimaryNick = nick
	return nil
}

func (f *fakeUsers) SetBirthday(_ context.Context, id int64, birthday string) error {
	u, err := f.find(func(u *domain.User) bool { return u.ID == id })
	if err != nil {
		return err
	}
	u.Birthday = birthday
	return nil
}

func (f *fakeUsers) Touch(_ context.Context, address, message string, at time.Time) error {
	u, err := f.find(func(u *domain.User) bool { return u.Address == address })
	if err != nil {
		u = f.add(address, "")
	}
	u.LastActive = at
	u.LastMessage = message
	return nil
}

func (f *fakeUsers) SetTimeout(_ context.Context, id int64, timeout time.Duration) error {
	u, err := f.find(func(u *domain.User) bool { return u.ID == id })
	if err != nil {
		return err
	}
	u.Timeout = timeout
	return nil
}

func (f *fakeUsers) Nicks(_ context.Context, address string) ([]domain.Nick, error) {
	var out []domain.Nick
	for _, n := range f.nicks {
		if n.Address == address {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeUsers) AddNick(_ context.Context, address, nick string) error {
	nick, err := domain.NormalizeNick(nick)
	if err != nil {
		return err
	}
	for _, n := range f.nicks {
		if n.Name == nick {
			return fmt.Errorf("%w: %s", domain.ErrNickTaken, nick)
		}
	}
	f.nicks = append(f.nicks, domain.Nick{ID: int64(len(f.nicks) + 1), Name: nick, Address: address})
	return nil
}

func (f *fakeUsers) RemoveNick(_ context.Context, address, idOrName string) error {
	for i, n := range f.nicks {
		if n.Name == strings.ToLower(idOrName) || strconv.FormatInt(n.ID, 10) == idOrName {
			if n.Address != address {
				return domain.ErrNotOwner
			}
			f.nicks = append(f.nicks[:i], f.nicks[i+1:]...)
			return nil
		}
	}
	return domain.ErrNickNotFound
}

func (f *fakeUsers) IsAdmin(_ context.Context, address string) (bool, error) {
	u, err := f.find(func(u *domain.User) bool { return u.Address == address })
	if err != nil {
		return false, err
	}
	return u.Admin, nil
}

func direct(sender, body string) domain.Message {
	return domain.Message{Sender: sender, Conversation: sender, Body: body}
}

func group(sender, body string) domain.Message {
	return domain.Message{Sender: sender, Conversation: "-100", IsGroup: true, Body: body}
}
