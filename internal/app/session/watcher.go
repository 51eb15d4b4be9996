package session

import (
	"context"

	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/pkg/logger"
	"github.com/pharmaverte/storefront/supabase"
)

// Feed is the slice of the auth client the watcher consumes.
type Feed interface {
	Session() *supabase.Session
	Subscribe() (<-chan supabase.SessionChange, func())
}

// Watcher consumes session changes from the auth client and keeps a Store in
// sync, loading the user's profile on sign-in.
type Watcher struct {
	feed     Feed
	profiles storage.ProfileStore
	store    *Store
	logger   *logger.Logger
}

// NewWatcher creates a watcher that mirrors feed events into store.
func NewWatcher(feed Feed, profiles storage.ProfileStore, store *Store, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewDefault("session")
	}
	return &Watcher{feed: feed, profiles: profiles, store: store, logger: log}
}

// Run subscribes to the feed and applies changes until ctx is cancelled. The
// subscription is released on return, so a cancelled watcher stops receiving
// events entirely.
func (w *Watcher) Run(ctx context.Context) {
	ch, release := w.feed.Subscribe()
	defer release()

	// Pick up a session established before the watcher started.
	if sess := w.feed.Session(); sess != nil {
		w.apply(ctx, supabase.SessionChange{Event: supabase.EventSignedIn, Session: sess})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-ch:
			if !ok {
				return
			}
			w.apply(ctx, change)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, change supabase.SessionChange) {
	switch change.Event {
	case supabase.EventSignedOut:
		w.store.Clear()
		w.logger.Info("session cleared")

	case supabase.EventSignedIn, supabase.EventTokenRefreshed:
		if change.Session == nil || change.Session.User == nil {
			return
		}
		previousID := w.store.UserID()
		w.store.SetUser(change.Session.User)

		// The profile only needs reloading when the identity changed.
		if change.Event == supabase.EventTokenRefreshed && change.Session.User.ID == previousID {
			return
		}
		p, err := w.profiles.GetProfile(ctx, change.Session.User.ID)
		if err != nil {
			w.logger.WithError(err).WithField("user_id", change.Session.User.ID).
				Warn("failed to load profile for session")
			w.store.SetProfile(nil)
			return
		}
		w.store.SetProfile(&p)
		w.logger.WithField("user_id", p.ID).Info("session established")
	}
}
