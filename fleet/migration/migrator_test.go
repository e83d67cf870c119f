package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"minefleet/fleet/database/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	existing map[string]bool
	upserts  map[string]*models.Account
	failFor  map[string]error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		existing: make(map[string]bool),
		upserts:  make(map[string]*models.Account),
		failFor:  make(map[string]error),
	}
}

func (f *fakeWriter) UpsertByUsername(_ context.Context, account *models.Account) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failFor[account.Username]; err != nil {
		return false, err
	}
	f.upserts[account.Username] = account
	if f.existing[account.Username] {
		return false, nil
	}
	f.existing[account.Username] = true
	return true, nil
}

func (f *fakeWriter) stored(username string) *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts[username]
}

func writeAccountsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportFromFile(t *testing.T) {
	writer := newFakeWriter()
	m := NewMigrator(writer)

	path := writeAccountsFile(t, `# fleet accounts
miner1:hunter2

miner2:pass:word
nopassword
:orphan
miner3:p3
`)

	stats, err := m.ImportFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFromFile() error = %v", err)
	}

	if stats.Read != 5 {
		t.Errorf("Read = %d, want 5", stats.Read)
	}
	if stats.Created != 3 {
		t.Errorf("Created = %d, want 3", stats.Created)
	}
	if stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", stats.Skipped)
	}
	if stats.Failed != 0 {
		t.Errorf("Failed = %d, want 0", stats.Failed)
	}

	got := writer.stored("miner1")
	if got == nil || got.Password != "hunter2" || !got.IsValid {
		t.Errorf("miner1 = %+v, want password hunter2 and valid", got)
	}
	// Passwords may themselves contain colons; only the first one splits.
	if got := writer.stored("miner2"); got == nil || got.Password != "pass:word" {
		t.Errorf("miner2 = %+v, want password pass:word", got)
	}
}

func TestImportFromFile_Batches(t *testing.T) {
	writer := newFakeWriter()
	m := NewMigrator(writer)
	m.SetBatchSize(2)
	m.SetWorkers(2)

	path := writeAccountsFile(t, "a1:p\na2:p\na3:p\na4:p\na5:p\n")

	stats, err := m.ImportFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFromFile() error = %v", err)
	}
	if stats.Created != 5 {
		t.Errorf("Created = %d, want 5", stats.Created)
	}
	for _, username := range []string{"a1", "a2", "a3", "a4", "a5"} {
		if writer.stored(username) == nil {
			t.Errorf("account %s was not imported", username)
		}
	}
}

func TestImportFromFile_UpdatesExisting(t *testing.T) {
	writer := newFakeWriter()
	writer.existing["miner1"] = true
	m := NewMigrator(writer)

	path := writeAccountsFile(t, "miner1:newpass\nminer2:p\n")

	stats, err := m.ImportFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFromFile() error = %v", err)
	}
	if stats.Created != 1 || stats.Updated != 1 {
		t.Errorf("Created/Updated = %d/%d, want 1/1", stats.Created, stats.Updated)
	}
	if got := writer.stored("miner1"); got == nil || got.Password != "newpass" {
		t.Errorf("miner1 = %+v, want refreshed password", got)
	}
}

func TestImportFromFile_FailuresCounted(t *testing.T) {
	writer := newFakeWriter()
	writer.failFor["miner2"] = errors.New("connection reset")
	m := NewMigrator(writer)

	path := writeAccountsFile(t, "miner1:p\nminer2:p\nminer3:p\n")

	stats, err := m.ImportFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFromFile() error = %v", err)
	}
	if stats.Created != 2 || stats.Failed != 1 {
		t.Errorf("Created/Failed = %d/%d, want 2/1", stats.Created, stats.Failed)
	}
	if writer.stored("miner3") == nil {
		t.Error("import stopped at the failed account")
	}
}

func TestImportFromFile_Missing(t *testing.T) {
	m := NewMigrator(newFakeWriter())
	if _, err := m.ImportFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Fatal("ImportFromFile() expected error for missing file")
	}
}

func TestImportFromMongo_Unconfigured(t *testing.T) {
	m := NewMigrator(newFakeWriter())
	if _, err := m.ImportFromMongo(context.Background()); err == nil {
		t.Fatal("ImportFromMongo() expected error without UseMongo")
	}
}

func TestConvertAccount(t *testing.T) {
	valid := true
	invalid := false

	tests := []struct {
		name     string
		doc      MongoAccount
		wantOK   bool
		wantUser string
		wantTok  string
		wantGood bool
	}{
		{
			name:     "full document",
			doc:      MongoAccount{Username: "miner1", Password: "p", AccessToken: "tok-new", UserID: "42", IsValid: &valid},
			wantOK:   true,
			wantUser: "miner1",
			wantTok:  "tok-new",
			wantGood: true,
		},
		{
			name:     "legacy token field",
			doc:      MongoAccount{Username: "miner2", Token: "tok-old"},
			wantOK:   true,
			wantUser: "miner2",
			wantTok:  "tok-old",
			wantGood: true,
		},
		{
			name:     "access_token wins over token",
			doc:      MongoAccount{Username: "miner3", AccessToken: "tok-new", Token: "tok-old"},
			wantOK:   true,
			wantUser: "miner3",
			wantTok:  "tok-new",
			wantGood: true,
		},
		{
			name:     "flagged invalid",
			doc:      MongoAccount{Username: "miner4", IsValid: &invalid},
			wantOK:   true,
			wantUser: "miner4",
			wantGood: false,
		},
		{
			name:   "missing username",
			doc:    MongoAccount{Password: "p"},
			wantOK: false,
		},
		{
			name:   "whitespace username",
			doc:    MongoAccount{Username: "   "},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertAccount(tt.doc)
			if ok != tt.wantOK {
				t.Fatalf("convertAccount() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Username != tt.wantUser {
				t.Errorf("Username = %q, want %q", got.Username, tt.wantUser)
			}
			if got.AccessToken != tt.wantTok {
				t.Errorf("AccessToken = %q, want %q", got.AccessToken, tt.wantTok)
			}
			if got.IsValid != tt.wantGood {
				t.Errorf("IsValid = %v, want %v", got.IsValid, tt.wantGood)
			}
		})
	}
}
