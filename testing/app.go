package drivetest

import (
	"testing"

	"github.com/blockberries/drive/app"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/storage"
)

// AppEnv is a fully wired application backed by an in-memory database
// and an in-memory remote state service.
type AppEnv struct {
	App    *app.App
	Remote *StateService
}

// NewApp builds an App over fresh in-memory storage. The remote state
// service knows contracts.
func NewApp(t *testing.T, contracts ...*dpp.DataContract) *AppEnv {
	t.Helper()

	db, err := storage.Open("")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	remote := NewStateService(contracts...)
	client := remote.Client()
	provider, err := app.NewDataProvider(client, storage.NewIdentityRepository(db), 16)
	if err != nil {
		t.Fatalf("create data provider: %v", err)
	}
	a, err := app.New(app.Params{
		Engine:       dpp.New(provider),
		DataProvider: provider,
		Remote:       client,
		DB:           db,
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	return &AppEnv{App: a, Remote: remote}
}
