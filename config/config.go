package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"b3repro/internal/types"
)

type AppConfig struct {
	TaskConfigPath string
	RabbitMQURL    string
	MachineID      string
	LogLevel       string
	ServiceName    string
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	config := &AppConfig{
		TaskConfigPath: os.Getenv("TASK_CONFIG"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"), // optional, heartbeats are disabled without it
		MachineID:      os.Getenv("MACHINE_ID"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		ServiceName:    os.Getenv("SERVICE_NAME"),
	}

	if config.TaskConfigPath == "" {
		logger.Fatal("TASK_CONFIG environment variable is required")
	}
	if config.MachineID == "" {
		config.MachineID = uuid.NewString()
	}
	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "b3repro" // Default service name
	}

	return config
}

// LoadTaskConfig parses the task definition the orchestrator wrote for this
// worker.
func LoadTaskConfig(appConfig *AppConfig) (*types.TaskConfig, error) {
	data, err := os.ReadFile(appConfig.TaskConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read task config: %w", err)
	}

	var task types.TaskConfig
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parse task config: %w", err)
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task config: %w", err)
	}
	return &task, nil
}
