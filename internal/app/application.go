// Package app wires the storefront: stores, session tracking, services and
// instrumentation.
package app

import (
	"context"
	"encoding/json"

	"github.com/pharmaverte/storefront/internal/app/cart"
	"github.com/pharmaverte/storefront/internal/app/domain/prescription"
	"github.com/pharmaverte/storefront/internal/app/metrics"
	"github.com/pharmaverte/storefront/internal/app/services/checkout"
	"github.com/pharmaverte/storefront/internal/app/session"
	"github.com/pharmaverte/storefront/internal/app/storage"
	"github.com/pharmaverte/storefront/internal/app/storage/memory"
	"github.com/pharmaverte/storefront/internal/app/storage/supabasestore"
	"github.com/pharmaverte/storefront/pkg/logger"
	"github.com/pharmaverte/storefront/supabase"

	catalogsvc "github.com/pharmaverte/storefront/internal/app/services/catalog"
	orderssvc "github.com/pharmaverte/storefront/internal/app/services/orders"
	prescriptionssvc "github.com/pharmaverte/storefront/internal/app/services/prescriptions"
	profilessvc "github.com/pharmaverte/storefront/internal/app/services/profiles"
)

// Stores bundles one implementation of every persistence interface.
type Stores struct {
	Catalog       storage.CatalogStore
	Favorites     storage.FavoriteStore
	Searches      storage.SearchHistoryStore
	Profiles      storage.ProfileStore
	Prescriptions storage.PrescriptionStore
	Orders        storage.OrderStore
}

// NewMemoryStores backs every interface with one in-memory store.
func NewMemoryStores() Stores {
	s := memory.New()
	return Stores{Catalog: s, Favorites: s, Searches: s, Profiles: s, Prescriptions: s, Orders: s}
}

// NewSupabaseStores backs every interface with the gateway.
func NewSupabaseStores(client *supabase.Client, log *logger.Logger) Stores {
	s := supabasestore.New(client, log)
	return Stores{Catalog: s, Favorites: s, Searches: s, Profiles: s, Prescriptions: s, Orders: s}
}

// Options configures the application.
type Options struct {
	Stores Stores
	// Client enables auth, document upload and the realtime status feed.
	// Without it the application runs storefront logic only.
	Client *supabase.Client
	// PrescriptionBucket is the storage bucket for uploaded documents.
	PrescriptionBucket string
	// Realtime enables the prescription status feed when a client is set.
	Realtime bool
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

// Application holds every wired component.
type Application struct {
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Cart    *cart.Cart
	Session *session.Store

	Catalog       *catalogsvc.Service
	Checkout      *checkout.Service
	Orders        *orderssvc.Service
	Prescriptions *prescriptionssvc.Service
	Profiles      *profilessvc.Service

	client   *supabase.Client
	realtime *supabase.Realtime
	watcher  *session.Watcher
	useRT    bool
}

// New wires the application from its options.
func New(opts Options) *Application {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	a := &Application{
		Logger:  log,
		Metrics: m,
		Cart:    cart.New(),
		Session: session.NewStore(),
		client:  opts.Client,
		useRT:   opts.Realtime && opts.Client != nil,
	}

	var uploader prescriptionssvc.Uploader
	var feed prescriptionssvc.StatusFeed
	if opts.Client != nil {
		bucket := opts.PrescriptionBucket
		if bucket == "" {
			bucket = "prescriptions"
		}
		uploader = opts.Client.Storage().From(bucket)
		if a.useRT {
			a.realtime = opts.Client.Realtime()
			feed = &prescriptionFeed{realtime: a.realtime, logger: log}
		}
		a.watcher = session.NewWatcher(opts.Client.Auth(), opts.Stores.Profiles, a.Session, log)
	}

	a.Catalog = catalogsvc.New(catalogsvc.Config{
		Catalog:   opts.Stores.Catalog,
		Favorites: opts.Stores.Favorites,
		Searches:  opts.Stores.Searches,
		Session:   a.Session,
		Logger:    log.WithField("service", "catalog"),
	})
	a.Checkout = checkout.New(checkout.Config{
		Cart:          a.Cart,
		Session:       a.Session,
		Prescriptions: opts.Stores.Prescriptions,
		Orders:        opts.Stores.Orders,
		Recorder:      m,
		Logger:        log.WithField("service", "checkout"),
	})
	a.Orders = orderssvc.New(orderssvc.Config{
		Store:   opts.Stores.Orders,
		Session: a.Session,
		Logger:  log.WithField("service", "orders"),
	})
	a.Prescriptions = prescriptionssvc.New(prescriptionssvc.Config{
		Store:    opts.Stores.Prescriptions,
		Uploader: uploader,
		Feed:     feed,
		Session:  a.Session,
		Logger:   log.WithField("service", "prescriptions"),
	})
	a.Profiles = profilessvc.New(profilessvc.Config{
		Store:   opts.Stores.Profiles,
		Session: a.Session,
		Logger:  log.WithField("service", "profiles"),
	})
	return a
}

// Auth returns the auth client, or nil when running without a gateway.
func (a *Application) Auth() *supabase.Auth {
	if a.client == nil {
		return nil
	}
	return a.client.Auth()
}

// Start launches the background loops: the session watcher, the token
// refresher and, when enabled, the realtime connection. It returns once the
// loops are running; they stop when ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	if a.watcher != nil {
		go a.watcher.Run(ctx)
		go a.client.Auth().KeepFresh(ctx, 0)
	}
	if a.useRT {
		if err := a.realtime.Connect(ctx); err != nil {
			// The feed is an enhancement; the storefront works without it.
			a.Logger.WithError(err).Warn("realtime connection failed")
			return nil
		}
		a.Logger.Info("realtime feed connected")
	}
	return nil
}

// prescriptionFeed adapts the realtime client to the prescription service's
// status feed.
type prescriptionFeed struct {
	realtime *supabase.Realtime
	logger   *logger.Logger
}

func (f *prescriptionFeed) SubscribePrescriptions(userID string, handler func(prescription.Prescription)) (func(), error) {
	return f.realtime.Subscribe(supabase.ChangesConfig{
		Event:  "UPDATE",
		Table:  "prescriptions",
		Filter: "user_id=eq." + userID,
	}, func(change supabase.Change) {
		var p prescription.Prescription
		if err := json.Unmarshal(change.Record, &p); err != nil {
			f.logger.WithError(err).Warn("failed to decode prescription change")
			return
		}
		handler(p)
	})
}
