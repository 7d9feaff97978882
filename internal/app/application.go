// Package app wires the review workflow services over their stores.
package app

import (
	"github.com/openlend/review_service/internal/app/audit"
	"github.com/openlend/review_service/internal/app/cache"
	"github.com/openlend/review_service/internal/app/metrics"
	"github.com/openlend/review_service/internal/app/services/applications"
	"github.com/openlend/review_service/internal/app/services/assignment"
	"github.com/openlend/review_service/internal/app/services/reviewers"
	"github.com/openlend/review_service/internal/app/services/reviews"
	"github.com/openlend/review_service/internal/app/services/selection"
	"github.com/openlend/review_service/internal/app/storage"
	"github.com/openlend/review_service/internal/app/storage/memory"
	"github.com/openlend/review_service/pkg/logger"
)

// Stores groups the persistence dependencies. Nil fields default to a shared
// in-memory store.
type Stores struct {
	Applications storage.ApplicationStore
	Reviewers    storage.ReviewerStore
}

// Options configures Application construction.
type Options struct {
	Stores    Stores
	Workloads *cache.Workload
	Audit     *audit.Trail
	Logger    *logger.Logger
}

// Application bundles every workflow service behind one constructor.
type Application struct {
	Applications *applications.Service
	Assignment   *assignment.Service
	Reviews      *reviews.Service
	Selection    *selection.Service
	Reviewers    *reviewers.Service

	Audit   *audit.Trail
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// New constructs the application. Missing stores fall back to a single shared
// in-memory store so tests and local runs need no external services.
func New(opts Options) (*Application, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("app")
	}

	apps := opts.Stores.Applications
	revs := opts.Stores.Reviewers
	if apps == nil || revs == nil {
		mem := memory.New()
		if apps == nil {
			apps = mem
		}
		if revs == nil {
			revs = mem
		}
	}

	trail := opts.Audit
	if trail == nil {
		var err error
		trail, err = audit.NewTrail(0, "", log.WithField("component", "audit"))
		if err != nil {
			return nil, err
		}
	}

	return &Application{
		Applications: applications.NewService(apps, log.WithField("service", "applications")),
		Assignment:   assignment.NewService(apps, revs, opts.Workloads, log.WithField("service", "assignment")),
		Reviews:      reviews.NewService(apps, log.WithField("service", "reviews")),
		Selection:    selection.NewService(apps, revs, log.WithField("service", "selection")),
		Reviewers:    reviewers.NewService(revs, log.WithField("service", "reviewers")),
		Audit:        trail,
		Metrics:      metrics.New(),
		Log:          log,
	}, nil
}
