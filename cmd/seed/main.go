package main

import (
	"context"
	"log"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/logging"
	"codeweave/backend/internal/services"
	"codeweave/backend/internal/storage/factory"
	"codeweave/backend/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	// Load config
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	f, err := factory.New(cfg.Storage, logger)
	if err != nil {
		log.Fatalf("Failed to initialize storage factory: %v", err)
	}

	users := f.GetUserAdapter()
	workflows := f.GetWorkflowAdapter()
	if err := f.ConnectAll(ctx); err != nil {
		log.Fatalf("Failed to connect storage: %v", err)
	}
	defer f.DisconnectAll(context.Background())

	// Ensure the schema exists on a fresh postgres database
	if client := f.PostgresClient(); client != nil {
		if err := client.Migrate(ctx); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
	}

	// 1. Ensure the demo user exists
	username := "demo"
	user, err := users.GetByUsername(ctx, username)
	if err != nil {
		log.Fatalf("Failed to look up user: %v", err)
	}
	if user == nil {
		logger.Info("Creating demo user", "username", username)
		user, err = users.Create(ctx, &models.UserProfile{
			Username:    username,
			Preferences: map[string]any{"email": "demo@localhost"},
		})
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
	} else {
		logger.Info("Found existing user", "id", user.ID)
	}

	workflowService := services.NewWorkflowService(workflows)

	// 2. Create seed workflow definitions, skipping names already present
	seeds := []struct {
		Name        string
		Description string
		Tags        []string
	}{
		{"summarize-and-review", "Summarizes a document and routes it through a human review gate.", []string{"docs", "review"}},
		{"nightly-report", "Collects metrics and publishes the nightly status report.", []string{"reporting"}},
		{"code-review", "Analyzes code snippets for style and bugs.", []string{"code", "review"}},
	}

	for _, seed := range seeds {
		existing, err := workflows.GetLatestVersion(ctx, seed.Name)
		if err != nil {
			log.Fatalf("Failed to check workflow %s: %v", seed.Name, err)
		}
		if existing != nil {
			logger.Info("Skipping existing workflow", "name", seed.Name)
			continue
		}

		description := seed.Description
		def, err := workflowService.Register(ctx, &models.WorkflowDefinition{
			Name:        seed.Name,
			Description: &description,
			YAMLContent: "steps:\n  - id: start\n    type: task\n",
			Tags:        seed.Tags,
			CreatedBy:   &user.ID,
		})
		if err != nil {
			log.Printf("Failed to create workflow %s: %v", seed.Name, err)
			continue
		}

		if _, err := workflowService.SetStatus(ctx, def.ID, models.WorkflowStatusActive); err != nil {
			log.Printf("Failed to activate workflow %s: %v", seed.Name, err)
			continue
		}
		logger.Info("Seeded workflow", "name", seed.Name, "id", def.ID)
	}
	logger.Info("Seeding complete!")
}
