// Package factory constructs and caches storage adapters for the
// configured backend family. Configuration is validated eagerly at
// construction; adapters are built lazily on first request and cached,
// and every adapter of one family shares a single underlying client
// (one connection pool or one HTTP client).
package factory

import (
	"context"
	"sync"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
	"codeweave/backend/internal/storage/postgres"
	"codeweave/backend/internal/storage/supabase"
)

// Factory hands out the per-entity storage adapters. It is safe for
// concurrent use.
type Factory struct {
	cfg    config.StorageConfig
	logger *logging.Logger

	mu sync.Mutex
	pg *postgres.Client
	sb *supabase.Client

	users      storage.UserAdapter
	workflows  storage.WorkflowAdapter
	executions storage.ExecutionAdapter
	steps      storage.StepExecutionAdapter
	approvals  storage.ApprovalAdapter
	logs       storage.LogAdapter
}

// New validates the storage configuration and returns a factory for it.
// Validation is eager: a missing setting or an unknown backend family
// fails here, naming the offending key, instead of on the first
// adapter request.
func New(cfg config.StorageConfig, logger *logging.Logger) (*Factory, error) {
	const op = "factory.new"

	switch cfg.Backend {
	case config.BackendPostgres:
		if cfg.Postgres.DSN == "" {
			return nil, storage.NewConfigurationError(op, "storage.postgres.dsn is required for the postgres backend")
		}
	case config.BackendSupabase:
		if cfg.Supabase.URL == "" {
			return nil, storage.NewConfigurationError(op, "storage.supabase.url is required for the supabase backend")
		}
		if cfg.Supabase.AnonKey == "" {
			return nil, storage.NewConfigurationError(op, "storage.supabase.anon_key is required for the supabase backend")
		}
	case "":
		return nil, storage.NewConfigurationError(op, "storage.backend is required (%q or %q)",
			config.BackendPostgres, config.BackendSupabase)
	default:
		return nil, storage.NewConfigurationError(op, "unknown storage backend %q (expected %q or %q)",
			cfg.Backend, config.BackendPostgres, config.BackendSupabase)
	}

	return &Factory{cfg: cfg, logger: logger}, nil
}

// Backend returns the configured backend family.
func (f *Factory) Backend() string { return f.cfg.Backend }

// PostgresClient returns the shared relational client, creating it on
// first use. It returns nil when another family is configured; callers
// needing migrations check the family first.
func (f *Factory) PostgresClient() *postgres.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.Backend != config.BackendPostgres {
		return nil
	}
	return f.postgresClientLocked()
}

func (f *Factory) postgresClientLocked() *postgres.Client {
	if f.pg == nil {
		f.pg = postgres.NewClient(f.cfg.Postgres, f.logger)
	}
	return f.pg
}

func (f *Factory) supabaseClientLocked() *supabase.Client {
	if f.sb == nil {
		f.sb = supabase.NewClient(f.cfg.Supabase, f.logger)
	}
	return f.sb
}

// GetUserAdapter returns the cached user profile adapter, creating it
// on first request.
func (f *Factory) GetUserAdapter() storage.UserAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		if f.cfg.Backend == config.BackendPostgres {
			f.users = postgres.NewUserAdapter(f.postgresClientLocked(), f.logger)
		} else {
			f.users = supabase.NewUserAdapter(f.supabaseClientLocked(), f.logger)
		}
	}
	return f.users
}

// GetWorkflowAdapter returns the cached workflow definition adapter,
// creating it on first request.
func (f *Factory) GetWorkflowAdapter() storage.WorkflowAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.workflows == nil {
		if f.cfg.Backend == config.BackendPostgres {
			f.workflows = postgres.NewWorkflowAdapter(f.postgresClientLocked(), f.logger)
		} else {
			f.workflows = supabase.NewWorkflowAdapter(f.supabaseClientLocked(), f.logger)
		}
	}
	return f.workflows
}

// GetExecutionAdapter returns the cached execution adapter, creating it
// on first request.
func (f *Factory) GetExecutionAdapter() storage.ExecutionAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.executions == nil {
		if f.cfg.Backend == config.BackendPostgres {
			f.executions = postgres.NewExecutionAdapter(f.postgresClientLocked(), f.logger)
		} else {
			f.executions = supabase.NewExecutionAdapter(f.supabaseClientLocked(), f.logger)
		}
	}
	return f.executions
}

// GetStepAdapter returns the cached step execution adapter, creating it
// on first request.
func (f *Factory) GetStepAdapter() storage.StepExecutionAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.steps == nil {
		if f.cfg.Backend == config.BackendPostgres {
			f.steps = postgres.NewStepAdapter(f.postgresClientLocked(), f.logger)
		} else {
			f.steps = supabase.NewStepAdapter(f.supabaseClientLocked(), f.logger)
		}
	}
	return f.steps
}

// GetApprovalAdapter returns the cached approval request adapter,
// creating it on first request.
func (f *Factory) GetApprovalAdapter() storage.ApprovalAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approvals == nil {
		if f.cfg.Backend == config.BackendPostgres {
			f.approvals = postgres.NewApprovalAdapter(f.postgresClientLocked(), f.logger)
		} else {
			f.approvals = supabase.NewApprovalAdapter(f.supabaseClientLocked(), f.logger)
		}
	}
	return f.approvals
}

// GetLogAdapter returns the cached execution log adapter, creating it
// on first request.
func (f *Factory) GetLogAdapter() storage.LogAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logs == nil {
		if f.cfg.Backend == config.BackendPostgres {
			f.logs = postgres.NewLogAdapter(f.postgresClientLocked(), f.logger)
		} else {
			f.logs = supabase.NewLogAdapter(f.supabaseClientLocked(), f.logger)
		}
	}
	return f.logs
}

// ConnectAll connects every adapter created so far. Connect is
// idempotent on the shared clients, so repeated calls and overlapping
// adapters are safe.
func (f *Factory) ConnectAll(ctx context.Context) error {
	for _, a := range f.cached() {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectAll disconnects every adapter created so far. All adapters
// are attempted; the first error is returned.
func (f *Factory) DisconnectAll(ctx context.Context) error {
	var first error
	for _, a := range f.cached() {
		if err := a.Disconnect(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClearCache drops every cached adapter and shared client so the next
// request builds fresh ones. It does not close connections; call
// DisconnectAll first.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = nil
	f.workflows = nil
	f.executions = nil
	f.steps = nil
	f.approvals = nil
	f.logs = nil
	f.pg = nil
	f.sb = nil
}

func (f *Factory) cached() []storage.Lifecycle {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]storage.Lifecycle, 0, 6)
	for _, a := range []storage.Lifecycle{f.users, f.workflows, f.executions, f.steps, f.approvals, f.logs} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}
