package api

import (
	"github.com/starford/agora/internal/feed"
	"github.com/starford/agora/internal/notifications"
	"github.com/starford/agora/internal/social"
)

// Services bundles the domain services the API exposes.
type Services struct {
	Social        *social.Service
	Feed          *feed.Service
	Notifications *notifications.Service
}
