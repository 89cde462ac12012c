package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

const (
	UnknownUserReply = "Who are you?"
	UnknownNickReply = "Unknown nick."
	NickTakenReply   = "That nick is already taken."
	NotYourNickReply = "That nick is not yours."
	InvalidNickReply = "Nicks have at most 16 characters, no spaces and are not just digits."
)

// Users manages users and their nicknames.
type Users struct {
	store port.UserStore
	auth  authorizer
}

func NewUsers(store port.UserStore, auth authorizer) *Users {
	return &Users{store: store, auth: auth}
}

func (u *Users) Name() string {
	return "users"
}

func (u *Users) Register(registry *command.Registry, _ *event.Bus) error {
	users := command.WithCategory("users")

	registry.Register([]string{"mynicks", "lsnicks"}, port.CommandFunc(u.myNicks), users)
	registry.Register([]string{"addnick"}, port.CommandFunc(u.addNick), users)
	registry.Register([]string{"rmnick"}, port.CommandFunc(u.removeNick), users)
	registry.Register([]string{"user", "whois"}, port.CommandFunc(u.whois), users)
	registry.Register([]string{"register"}, u.admin(u.register), users)
	registry.Register([]string{"gns"}, u.admin(u.nameless), users)
	registry.Register([]string{"setbday"}, u.admin(u.setBirthday), users, command.Hidden())

	mentions := command.WithCategory("mentions")
	registry.Register([]string{"timeout", "settimeout"}, port.CommandFunc(u.setOwnTimeout), mentions)
	registry.Register([]string{"ftimeout"}, u.admin(u.setOtherTimeout), mentions, command.Hidden())

	return nil
}

func (u *Users) admin(next port.CommandFunc) port.Command {
	return port.CommandFunc(func(ctx context.Context, message domain.Message) (string, error) {
		if !u.auth.IsAdmin(ctx, message.Sender) {
			log.Warn().Str("sender", message.Sender).Msg("unauthorized admin command")
			return NotAuthorizedReply, nil
		}

		return next(ctx, message)
	})
}

// myNicks stays silent in groups.
func (u *Users) myNicks(ctx context.Context, message domain.Message) (string, error) {
	if message.IsGroup {
		return "", nil
	}

	user, err := u.store.User(ctx, message.Sender)
	if errors.Is(err, domain.ErrUserNotFound) {
		return UnknownUserReply, nil
	}
	if err != nil {
		return "", err
	}

	nicks, err := u.store.Nicks(ctx, message.Sender)
	if err != nil {
		return "", err
	}

	if len(nicks) == 0 {
		return fmt.Sprintf("No nicknames known for %s (internal id %d).", user.DisplayName(), user.ID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Nicknames for %s (%s/%d):", user.DisplayName(), user.Address, user.ID)
	for _, n := range nicks {
		fmt.Fprintf(&b, "\n%s (id %d)", n.Name, n.ID)
	}

	return b.String(), nil
}

func (u *Users) addNick(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 1 {
		return "Usage: addnick <nick>", nil
	}

	err := u.store.AddNick(ctx, message.Sender, args[0])
	switch {
	case errors.Is(err, domain.ErrInvalidNick):
		return InvalidNickReply, nil
	case errors.Is(err, domain.ErrNickTaken):
		return NickTakenReply, nil
	case err != nil:
		return "", err
	}

	log.Info().Str("sender", message.Sender).Str("nick", args[0]).Msg("nick added")
	return "Ok.", nil
}

func (u *Users) removeNick(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 1 {
		return "Usage: rmnick <id or nick>", nil
	}

	err := u.store.RemoveNick(ctx, message.Sender, args[0])
	switch {
	case errors.Is(err, domain.ErrNickNotFound):
		return UnknownNickReply, nil
	case errors.Is(err, domain.ErrNotOwner):
		return NotYourNickReply, nil
	case err != nil:
		return "", err
	}

	return "Ok.", nil
}

// lookup finds a user by id, primary nick or extra nick.
func (u *Users) lookup(ctx context.Context, idOrNick string) (domain.User, error) {
	user, err := u.store.LookupUser(ctx, idOrNick)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return user, err
	}

	address, err := u.store.ResolveAliasToAddress(ctx, idOrNick)
	if err != nil {
		return domain.User{}, err
	}

	return u.store.User(ctx, address)
}

func (u *Users) whois(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 1 {
		return "Usage: whois <id or nick>", nil
	}

	user, err := u.lookup(ctx, args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return UnknownNickReply, nil
	}
	if err != nil {
		return "", err
	}

	lastSeen := "never"
	if !user.LastActive.IsZero() && user.LastActive.Unix() > 0 {
		lastSeen = user.LastActive.Format(time.DateTime)
	}

	reply := fmt.Sprintf("User %d: %s (%s)\ntimeout: %s\nlast seen: %s",
		user.ID, user.DisplayName(), user.Address, user.Timeout, lastSeen)
	if user.Birthday != "" {
		reply += "\nbirthday: " + user.Birthday
	}

	return reply, nil
}

func (u *Users) register(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 2 {
		return "Usage: register <id> <nick>", nil
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Usage: register <id> <nick>", nil
	}

	err = u.store.RegisterUser(ctx, id, args[1])
	switch {
	case errors.Is(err, domain.ErrInvalidNick):
		return InvalidNickReply, nil
	case errors.Is(err, domain.ErrNickTaken):
		return NickTakenReply, nil
	case errors.Is(err, domain.ErrUserNotFound):
		return fmt.Sprintf("No user with id %d.", id), nil
	case err != nil:
		return "", err
	}

	log.Info().Int64("id", id).Str("nick", args[1]).Msg("user registered")
	return fmt.Sprintf("Registered user %d as %s.", id, strings.ToLower(args[1])), nil
}

// nameless lists users that talked to the bot but were never registered.
func (u *Users) nameless(ctx context.Context, _ domain.Message) (string, error) {
	users, err := u.store.NamelessSeen(ctx)
	if err != nil {
		return "", err
	}

	if len(users) == 0 {
		return "Nobody.", nil
	}

	lines := make([]string, 0, len(users))
	for _, user := range users {
		lines = append(lines, fmt.Sprintf("%d %s: %s", user.ID, user.Address, user.LastMessage))
	}

	return strings.Join(lines, "\n"), nil
}

func (u *Users) setBirthday(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 2 {
		return "Usage: setbday <id or nick> <MM-DD>", nil
	}

	bday, err := domain.ParseBirthday(args[1])
	if err != nil {
		return "Usage: setbday <id or nick> <MM-DD>", nil
	}

	user, err := u.lookup(ctx, args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return UnknownNickReply, nil
	}
	if err != nil {
		return "", err
	}

	if err := u.store.SetBirthday(ctx, user.ID, bday); err != nil {
		return "", err
	}

	return fmt.Sprintf("Birthday of %s set to %s.", user.DisplayName(), bday), nil
}

// parseTimeout accepts whole seconds or a duration such as 90m.
func parseTimeout(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative timeout %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %s", d)
	}

	return d.Truncate(time.Second), nil
}

// setOwnTimeout changes how long the sender must be quiet before mentions
// are forwarded. Zero forwards every mention.
func (u *Users) setOwnTimeout(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 1 {
		return "Usage: timeout <seconds>", nil
	}

	timeout, err := parseTimeout(args[0])
	if err != nil {
		log.Warn().Str("timeout", args[0]).Msg("invalid timeout")
		return "Usage: timeout <seconds>", nil
	}

	user, err := u.store.User(ctx, message.Sender)
	if errors.Is(err, domain.ErrUserNotFound) {
		return UnknownUserReply, nil
	}
	if err != nil {
		return "", err
	}

	if err := u.store.SetTimeout(ctx, user.ID, timeout); err != nil {
		return "", err
	}

	return "Ok.", nil
}

func (u *Users) setOtherTimeout(ctx context.Context, message domain.Message) (string, error) {
	args := message.Args()
	if len(args) != 2 {
		return "Usage: ftimeout <id or nick> <seconds>", nil
	}

	timeout, err := parseTimeout(args[1])
	if err != nil {
		return "Usage: ftimeout <id or nick> <seconds>", nil
	}

	user, err := u.lookup(ctx, args[0])
	if errors.Is(err, domain.ErrNotFound) {
		return UnknownNickReply, nil
	}
	if err != nil {
		return "", err
	}

	if err := u.store.SetTimeout(ctx, user.ID, timeout); err != nil {
		return "", err
	}

	return fmt.Sprintf("Timeout for user %d updated to %s.", user.ID, timeout), nil
}
