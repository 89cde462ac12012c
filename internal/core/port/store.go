package port

import (
	"context"
	"time"

	"tombot/internal/core/domain"
)

type UserStore interface {
	// ResolveAliasToAddress finds the address of the user known by a primary or extra nick.
	ResolveAliasToAddress(ctx context.Context, alias string) (string, error)
	// ResolveAddressToAlias returns the primary nick of address.
	ResolveAddressToAlias(ctx context.Context, address string) (string, error)
	// User loads the user with the given address.
	User(ctx context.Context, address string) (domain.User, error)
	// LookupUser finds a user by numeric id or primary nick.
	LookupUser(ctx context.Context, idOrNick string) (domain.User, error)
	// NamelessSeen lists users that talked but have no primary nick.
	NamelessSeen(ctx context.Context) ([]domain.User, error)
	// Birthdays lists users with a known birthday.
	Birthdays(ctx context.Context) ([]domain.User, error)
	// RegisterUser sets the primary nick of the user with id.
	RegisterUser(ctx context.Context, id int64, nick string) error
	// SetBirthday stores the MM-DD birthday of the user with id.
	SetBirthday(ctx context.Context, id int64, birthday string) error
	// Touch records activity of address, creating the user when needed.
	Touch(ctx context.Context, address, message string, at time.Time) error
	// SetTimeout changes how long the user with id counts as active after a message.
	SetTimeout(ctx context.Context, id int64, timeout time.Duration) error
	// Nicks lists the extra nicks of address.
	Nicks(ctx context.Context, address string) ([]domain.Nick, error)
	// AddNick attaches an extra nick to address.
	AddNick(ctx context.Context, address, nick string) error
	// RemoveNick detaches a nick by id or name, only if owned by address.
	RemoveNick(ctx context.Context, address, idOrName string) error
	// IsAdmin reports whether address is flagged as admin in the store.
	IsAdmin(ctx context.Context, address string) (bool, error)
}
