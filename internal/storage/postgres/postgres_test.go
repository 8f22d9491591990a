package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

func TestPostgresAdapters(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	logger := logging.NewLogger()
	client := NewClient(config.PostgresConfig{DSN: connStr}, logger)
	require.NoError(t, client.Connect(ctx))
	defer client.Disconnect(ctx)

	require.NoError(t, client.Migrate(ctx))
	// migration is idempotent
	require.NoError(t, client.Migrate(ctx))

	users := NewUserAdapter(client, logger)
	workflows := NewWorkflowAdapter(client, logger)
	executions := NewExecutionAdapter(client, logger)
	steps := NewStepAdapter(client, logger)
	approvals := NewApprovalAdapter(client, logger)
	logs := NewLogAdapter(client, logger)

	newUser := func(t *testing.T, username, email string) *models.UserProfile {
		t.Helper()
		u, err := users.Create(ctx, &models.UserProfile{
			Username:    username,
			Preferences: map[string]any{"email": email},
		})
		require.NoError(t, err)
		return u
	}

	newWorkflow := func(t *testing.T, name string, version int) *models.WorkflowDefinition {
		t.Helper()
		w, err := workflows.Create(ctx, &models.WorkflowDefinition{
			Name:        name,
			YAMLContent: "steps: []",
			Version:     version,
			Status:      models.WorkflowStatusActive,
		})
		require.NoError(t, err)
		return w
	}

	newExecution := func(t *testing.T, workflowID, externalID string) *models.WorkflowExecution {
		t.Helper()
		e, err := executions.Create(ctx, &models.WorkflowExecution{
			WorkflowID:         workflowID,
			ExternalWorkflowID: externalID,
			ExternalRunID:      externalID + "-run",
		})
		require.NoError(t, err)
		return e
	}

	t.Run("user create and lookups", func(t *testing.T) {
		created := newUser(t, "ada", "ada@example.com")
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "UTC", created.Timezone)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := users.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "ada", got.Username)

		got, err = users.GetByUsername(ctx, "ada")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)

		got, err = users.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)

		got, err = users.GetByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("missing record returns nil without error", func(t *testing.T) {
		got, err := users.GetByID(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("malformed id is a validation error", func(t *testing.T) {
		_, err := users.GetByID(ctx, "not-a-uuid")
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
	})

	t.Run("duplicate username is a validation error", func(t *testing.T) {
		newUser(t, "grace", "grace@example.com")
		_, err := users.Create(ctx, &models.UserProfile{Username: "grace"})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
		assert.Contains(t, err.Error(), "unique constraint")
	})

	t.Run("workflow versioning", func(t *testing.T) {
		v1 := newWorkflow(t, "pipeline", 1)
		v2 := newWorkflow(t, "pipeline", 2)
		assert.NotEqual(t, v1.ID, v2.ID)

		// the (name, version) pair is unique
		_, err := workflows.Create(ctx, &models.WorkflowDefinition{
			Name:        "pipeline",
			YAMLContent: "steps: []",
			Version:     2,
		})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))

		latest, err := workflows.GetLatestVersion(ctx, "pipeline")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, 2, latest.Version)

		got, err := workflows.GetByNameAndVersion(ctx, "pipeline", 1)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, v1.ID, got.ID)

		latest, err = workflows.GetLatestVersion(ctx, "no-such-workflow")
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("workflow validation rules", func(t *testing.T) {
		_, err := workflows.Create(ctx, &models.WorkflowDefinition{Name: "broken", Version: 1})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
		assert.Contains(t, err.Error(), "yaml_content")

		tags := make([]string, models.MaxTags+1)
		for i := range tags {
			tags[i] = fmt.Sprintf("tag-%d", i)
		}
		_, err = workflows.Create(ctx, &models.WorkflowDefinition{
			Name: "too-many-tags", YAMLContent: "steps: []", Version: 1, Tags: tags,
		})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
	})

	t.Run("tag overlap matching", func(t *testing.T) {
		a, err := workflows.Create(ctx, &models.WorkflowDefinition{
			Name: "tagged-a", YAMLContent: "steps: []", Version: 1, Tags: []string{"etl", "nightly"},
		})
		require.NoError(t, err)
		_, err = workflows.Create(ctx, &models.WorkflowDefinition{
			Name: "tagged-b", YAMLContent: "steps: []", Version: 1, Tags: []string{"reporting"},
		})
		require.NoError(t, err)

		matches, err := workflows.ListByTags(ctx, []string{"etl", "unused"})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, a.ID, matches[0].ID)
	})

	t.Run("partial update leaves other fields alone", func(t *testing.T) {
		u := newUser(t, "lin", "lin@example.com")

		updated, err := users.Update(ctx, u.ID, storage.Fields{"timezone": "Europe/Berlin"})
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", updated.Timezone)
		assert.Equal(t, "lin", updated.Username)
		assert.True(t, updated.UpdatedAt.After(u.UpdatedAt) || updated.UpdatedAt.Equal(u.UpdatedAt))

		// applying the same patch again leaves the stored state unchanged
		again, err := users.Update(ctx, u.ID, storage.Fields{"timezone": "Europe/Berlin"})
		require.NoError(t, err)
		assert.Equal(t, updated.Timezone, again.Timezone)
		assert.Equal(t, updated.Username, again.Username)
		assert.Equal(t, updated.Preferences, again.Preferences)
		stored, err := users.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "Europe/Berlin", stored.Timezone)

		_, err = users.Update(ctx, uuid.New().String(), storage.Fields{"timezone": "UTC"})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))

		_, err = users.Update(ctx, u.ID, storage.Fields{"password": "nope"})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))

		_, err = users.Update(ctx, u.ID, storage.Fields{})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
	})

	t.Run("list pagination and count", func(t *testing.T) {
		wf := newWorkflow(t, "paginated", 1)
		for i := 0; i < 25; i++ {
			newExecution(t, wf.ID, fmt.Sprintf("ext-%02d", i))
		}

		page, err := executions.List(ctx, storage.ListOptions{
			Filters: storage.Filters{"workflow_id": wf.ID},
			OrderBy: "external_workflow_id",
			Limit:   10,
			Offset:  10,
		})
		require.NoError(t, err)
		require.Len(t, page, 10)
		assert.Equal(t, "ext-10", page[0].ExternalWorkflowID)
		assert.Equal(t, "ext-19", page[9].ExternalWorkflowID)

		n, err := executions.Count(ctx, storage.Filters{"workflow_id": wf.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(25), n)

		all, err := executions.List(ctx, storage.ListOptions{
			Filters: storage.Filters{"workflow_id": wf.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, int(n), len(all))

		newestFirst, err := executions.List(ctx, storage.ListOptions{
			Filters: storage.Filters{"workflow_id": wf.ID},
			OrderBy: "-created_at",
		})
		require.NoError(t, err)
		require.Len(t, newestFirst, 25)
		for i := 1; i < len(newestFirst); i++ {
			assert.False(t, newestFirst[i-1].CreatedAt.Before(newestFirst[i].CreatedAt))
		}

		_, err = executions.List(ctx, storage.ListOptions{OrderBy: "bogus"})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
	})

	t.Run("delete reports removal", func(t *testing.T) {
		u := newUser(t, "gone", "gone@example.com")

		removed, err := users.Delete(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = users.Delete(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("step records", func(t *testing.T) {
		wf := newWorkflow(t, "stepped", 1)
		exec := newExecution(t, wf.ID, "stepped-ext")

		s1, err := steps.Create(ctx, &models.StepExecution{
			ExecutionID: exec.ID, StepID: "fetch", StepName: "Fetch", StepType: "task",
		})
		require.NoError(t, err)
		_, err = steps.Create(ctx, &models.StepExecution{
			ExecutionID: exec.ID, StepID: "review", StepName: "Review", StepType: "approval",
		})
		require.NoError(t, err)

		// (execution_id, step_id) is unique
		_, err = steps.Create(ctx, &models.StepExecution{
			ExecutionID: exec.ID, StepID: "fetch", StepName: "Fetch", StepType: "task",
		})
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))

		listed, err := steps.ListByExecution(ctx, exec.ID)
		require.NoError(t, err)
		assert.Len(t, listed, 2)

		got, err := steps.GetByExecutionAndStep(ctx, exec.ID, "fetch")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s1.ID, got.ID)
	})

	t.Run("approval queue", func(t *testing.T) {
		approver := newUser(t, "approver", "approver@example.com")
		wf := newWorkflow(t, "gated", 1)
		exec := newExecution(t, wf.ID, "gated-ext")

		first, err := approvals.Create(ctx, &models.ApprovalRequest{
			ExecutionID: exec.ID, StepID: "gate-1", Title: "First gate", RequestedBy: &approver.ID,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, first.ApprovalToken)

		second, err := approvals.Create(ctx, &models.ApprovalRequest{
			ExecutionID: exec.ID, StepID: "gate-2", Title: "Second gate", RequestedBy: &approver.ID,
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.ApprovalToken, second.ApprovalToken)

		got, err := approvals.GetByToken(ctx, first.ApprovalToken)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)

		pending, err := approvals.ListPendingByUser(ctx, approver.ID)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, first.ID, pending[0].ID)

		now := time.Now().UTC()
		_, err = approvals.Update(ctx, first.ID, storage.Fields{
			"status":       string(models.ApprovalStatusApproved),
			"approved_by":  approver.ID,
			"responded_at": now,
		})
		require.NoError(t, err)

		pending, err = approvals.ListPendingByUser(ctx, approver.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.ID, pending[0].ID)
	})

	t.Run("log stream filters", func(t *testing.T) {
		wf := newWorkflow(t, "logged", 1)
		exec := newExecution(t, wf.ID, "logged-ext")

		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		stepID := "fetch"
		entries := []*models.ExecutionLog{
			{ExecutionID: exec.ID, Level: models.LogLevelInfo, Message: "started", Timestamp: base},
			{ExecutionID: exec.ID, StepID: &stepID, Level: models.LogLevelError, Message: "fetch failed", Timestamp: base.Add(time.Minute)},
			{ExecutionID: exec.ID, Level: models.LogLevelInfo, Message: "retrying", Timestamp: base.Add(2 * time.Minute)},
		}
		for _, e := range entries {
			_, err := logs.Create(ctx, e)
			require.NoError(t, err)
		}

		all, err := logs.ListByExecution(ctx, exec.ID, storage.LogQuery{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "started", all[0].Message)
		assert.Equal(t, "retrying", all[2].Message)

		errsOnly, err := logs.ListByExecution(ctx, exec.ID, storage.LogQuery{Level: models.LogLevelError})
		require.NoError(t, err)
		require.Len(t, errsOnly, 1)
		assert.Equal(t, "fetch failed", errsOnly[0].Message)

		start := base.Add(30 * time.Second)
		end := base.Add(90 * time.Second)
		ranged, err := logs.ListByExecution(ctx, exec.ID, storage.LogQuery{Start: &start, End: &end})
		require.NoError(t, err)
		require.Len(t, ranged, 1)
		assert.Equal(t, "fetch failed", ranged[0].Message)

		stepLogs, err := logs.ListByStep(ctx, exec.ID, stepID, "")
		require.NoError(t, err)
		require.Len(t, stepLogs, 1)
	})

	t.Run("transactions commit and roll back", func(t *testing.T) {
		tx, err := users.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, users.TxExec(ctx, tx,
			"INSERT INTO user_profiles (username) VALUES ($1)", "tx-rollback"))
		require.NoError(t, users.RollbackTx(ctx, tx))

		got, err := users.GetByUsername(ctx, "tx-rollback")
		require.NoError(t, err)
		assert.Nil(t, got)

		tx, err = users.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, users.TxExec(ctx, tx,
			"INSERT INTO user_profiles (username) VALUES ($1)", "tx-commit"))
		require.NoError(t, users.CommitTx(ctx, tx))

		got, err = users.GetByUsername(ctx, "tx-commit")
		require.NoError(t, err)
		require.NotNil(t, got)

		_, err = users.BeginTx(ctx)
		require.NoError(t, err)
		err = users.CommitTx(ctx, "not-a-handle")
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
	})

	t.Run("raw queries", func(t *testing.T) {
		rows, err := users.ExecuteRaw(ctx, "SELECT count(*) AS total FROM user_profiles WHERE username = $1", "tx-commit")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.EqualValues(t, 1, rows[0]["total"])

		_, err = users.ExecuteRaw(ctx, "SELEC count(*) FROM user_profiles")
		require.Error(t, err)
		assert.True(t, storage.IsValidation(err))
	})

	t.Run("cascades and weak references", func(t *testing.T) {
		owner := newUser(t, "owner", "owner@example.com")
		wf, err := workflows.Create(ctx, &models.WorkflowDefinition{
			Name: "cascading", YAMLContent: "steps: []", Version: 1, CreatedBy: &owner.ID,
		})
		require.NoError(t, err)
		exec := newExecution(t, wf.ID, "cascading-ext")
		_, err = steps.Create(ctx, &models.StepExecution{
			ExecutionID: exec.ID, StepID: "s1", StepName: "S1", StepType: "task",
		})
		require.NoError(t, err)
		_, err = logs.Create(ctx, &models.ExecutionLog{ExecutionID: exec.ID, Message: "hello"})
		require.NoError(t, err)

		// deleting the user nulls created_by but keeps the definition
		removed, err := users.Delete(ctx, owner.ID)
		require.NoError(t, err)
		require.True(t, removed)
		kept, err := workflows.GetByID(ctx, wf.ID)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Nil(t, kept.CreatedBy)

		// deleting the definition cascades through the execution tree
		removed, err = workflows.Delete(ctx, wf.ID)
		require.NoError(t, err)
		require.True(t, removed)

		gone, err := executions.GetByID(ctx, exec.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
		n, err := steps.Count(ctx, storage.Filters{"execution_id": exec.ID})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
