package handler

import (
	"context"
	"log/slog"

	"github.com/khanhnd/jobengine/internal/api/policy"
	"github.com/khanhnd/jobengine/internal/api/storage"
	"github.com/khanhnd/jobengine/internal/ledger"
	"github.com/khanhnd/jobengine/internal/outbox"
	"github.com/khanhnd/jobengine/shared/cache"
	"github.com/khanhnd/jobengine/shared/postgresql"
	"github.com/khanhnd/jobengine/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RabbitClient *rabbitmq.Client
	Authorizer   policy.Authorizer
	Cache        cache.Invalidator
}

// JobStore is the slice of the api storage the job handler uses
type JobStore interface {
	GetLedgerEntry(ctx context.Context, jobID string) (*ledger.Entry, error)
	ListLedgerEntries(ctx context.Context, filter storage.LedgerFilter) ([]ledger.Entry, error)
	ReopenFailedJob(ctx context.Context, jobID string) error
	AbortRequeue(ctx context.Context, jobID string) error
}

// JobPublisher publishes a job message to the primary queue
type JobPublisher interface {
	PublishJob(ctx context.Context, body []byte) error
}

// JobHandler serves ledger reads and administrative job actions
type JobHandler struct {
	logger    *slog.Logger
	storage   JobStore
	publisher JobPublisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		storage:   storage.NewStorage(deps.DBClient),
		publisher: deps.RabbitClient,
	}
}

// AdminHandler serves outbox administration and cache invalidation
type AdminHandler struct {
	logger *slog.Logger
	outbox *outbox.Store
	cache  cache.Invalidator
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{
		logger: deps.Logger,
		outbox: outbox.NewStore(deps.DBClient.GetDB(), deps.Logger),
		cache:  deps.Cache,
	}
}
