package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Authorizer interface {
	IsAdmin(ctx context.Context, address string) bool
}

type adminStore interface {
	IsAdmin(ctx context.Context, address string) (bool, error)
}

// AdminAuthorizer grants admin rights to addresses listed under bot.admins
// and to users flagged as admin in the store. The config list wins.
type AdminAuthorizer struct {
	admins []string
	store  adminStore
}

func NewAuthorizer(store adminStore) (*AdminAuthorizer, error) {
	var list []string

	err := viper.UnmarshalKey("bot.admins", &list)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin addresses: %w", err)
	}

	return &AdminAuthorizer{
		admins: list,
		store:  store,
	}, nil
}

func (a *AdminAuthorizer) IsAdmin(ctx context.Context, address string) bool {
	for _, admin := range a.admins {
		if admin == address {
			return true
		}
	}

	if a.store == nil {
		return false
	}

	ok, err := a.store.IsAdmin(ctx, address)
	if err != nil {
		log.Debug().Err(err).Str("address", address).Msg("admin lookup failed")
		return false
	}

	return ok
}
