package infrastructure_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/justinbach/migration-pipeline/internal/config"
	"github.com/justinbach/migration-pipeline/internal/infrastructure"
	"github.com/justinbach/migration-pipeline/pkg/database"
	"github.com/justinbach/migration-pipeline/pkg/storage"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func validConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "pipeline",
			User:            "pipeline",
			Password:        "pipeline",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Storage: storage.Config{
			Backend: storage.BackendLocal,
			Root:    t.TempDir(),
		},
		Version: "0.1.0",
	}
}

func TestNew(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil {
		t.Error("Lifecycle is nil")
	}
	if infra.Logger == nil {
		t.Error("Logger is nil")
	}
	if infra.Database == nil {
		t.Error("Database is nil")
	}
	if infra.Storage == nil {
		t.Error("Storage is nil")
	}
	if infra.Metrics == nil {
		t.Fatal("Metrics is nil")
	}

	families, err := infra.Metrics.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("runtime collectors not registered")
	}
}

func TestNewRegistriesAreIndependent(t *testing.T) {
	a, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatal(err)
	}

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	if err := a.Metrics.Register(c); err != nil {
		t.Fatalf("register on first: %v", err)
	}
	if err := b.Metrics.Register(c); err != nil {
		t.Errorf("register on second: %v", err)
	}
}

func TestNewDatabaseConnection(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	conn := infra.Database.Connection()
	if conn == nil {
		t.Fatal("Database.Connection() returned nil")
	}
	conn.Close()
}

func TestNewAzureStorage(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage = storage.Config{
		Backend:          storage.BackendAzure,
		ContainerName:    "captures",
		ConnectionString: azuriteConnString,
	}

	if _, err := infrastructure.New(cfg); err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

func TestNewInvalidStorageConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage = storage.Config{
		Backend:          storage.BackendAzure,
		ContainerName:    "captures",
		ConnectionString: "not-a-connection-string",
	}

	if _, err := infrastructure.New(cfg); err == nil {
		t.Fatal("expected error for invalid storage connection string")
	}
}
