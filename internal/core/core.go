// Package core bundles the shared stores every adapter depends on. The
// bundle is constructed once at startup and threaded to adapters
// explicitly; nothing in the bridge is a process-wide singleton.
package core

import (
	"github.com/hollowdong/chatbridge/internal/config"
	"github.com/hollowdong/chatbridge/internal/media"
	"github.com/hollowdong/chatbridge/internal/store"
)

type Core struct {
	Users    *store.UserStore
	Messages *store.MessageStore
	Media    *media.Cache
	Runtime  *config.Runtime
}

func New(users *store.UserStore, messages *store.MessageStore, cache *media.Cache, rt *config.Runtime) *Core {
	return &Core{Users: users, Messages: messages, Media: cache, Runtime: rt}
}
