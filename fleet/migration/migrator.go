// Package migration imports legacy account data into PostgreSQL: either
// a live MongoDB deployment from the old manager, or user:pass text
// files.
package migration

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"minefleet/fleet/database/models"
)

// AccountWriter is the slice of the account repository imports need.
type AccountWriter interface {
	UpsertByUsername(ctx context.Context, account *models.Account) (bool, error)
}

// MongoAccount is the legacy document shape. Older deployments stored
// the token under "token" rather than "access_token".
type MongoAccount struct {
	Username    string `bson:"username"`
	Password    string `bson:"password"`
	AccessToken string `bson:"access_token"`
	Token       string `bson:"token"`
	UserID      string `bson:"user_id"`
	IsValid     *bool  `bson:"is_valid"`
}

// Stats summarizes one import run.
type Stats struct {
	Read     int
	Created  int
	Updated  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

type Migrator struct {
	accounts  AccountWriter
	batchSize int
	workers   int64

	mongoDB  *mongo.Database
	collName string

	mu    sync.Mutex
	stats Stats
}

func NewMigrator(accounts AccountWriter) *Migrator {
	return &Migrator{
		accounts:  accounts,
		batchSize: 500,
		workers:   4,
		collName:  "accounts",
	}
}

// SetBatchSize overrides the default batch size (useful for poolers/timeouts).
func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// SetWorkers bounds the number of concurrent batch writers.
func (m *Migrator) SetWorkers(n int) {
	if n > 0 {
		m.workers = int64(n)
	}
}

// UseMongo enables direct-from-Mongo import mode.
func (m *Migrator) UseMongo(client *mongo.Client, dbName string) {
	if client != nil && dbName != "" {
		m.mongoDB = client.Database(dbName)
	}
}

// SetMongoCollectionName overrides the source collection (default "accounts").
func (m *Migrator) SetMongoCollectionName(name string) {
	if name != "" {
		m.collName = name
	}
}

// ImportFromMongo streams the legacy collection and upserts every
// account by username.
func (m *Migrator) ImportFromMongo(ctx context.Context) (Stats, error) {
	if m.mongoDB == nil {
		return Stats{}, fmt.Errorf("mongo not configured; call UseMongo first")
	}

	m.resetStats()
	start := time.Now()

	cur, err := m.mongoDB.Collection(m.collName).Find(ctx, bson.D{})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query %s: %w", m.collName, err)
	}
	defer cur.Close(ctx)

	sem := semaphore.NewWeighted(m.workers)
	g, gctx := errgroup.WithContext(ctx)

	var batch []*models.Account
	for cur.Next(ctx) {
		var doc MongoAccount
		if err := cur.Decode(&doc); err != nil {
			m.count(func(s *Stats) { s.Failed++ })
			continue
		}
		m.count(func(s *Stats) { s.Read++ })

		account, ok := convertAccount(doc)
		if !ok {
			m.count(func(s *Stats) { s.Skipped++ })
			continue
		}

		batch = append(batch, account)
		if len(batch) >= m.batchSize {
			m.spawnBatch(gctx, g, sem, batch)
			batch = nil
		}
	}
	if err := cur.Err(); err != nil {
		return m.snapshot(start), fmt.Errorf("failed to read %s: %w", m.collName, err)
	}
	if len(batch) > 0 {
		m.spawnBatch(gctx, g, sem, batch)
	}

	err = g.Wait()
	stats := m.snapshot(start)
	logImport("mongo", stats)
	return stats, err
}

// ImportFromFile reads user:pass lines and upserts every account. Blank
// lines and # comments are skipped.
func (m *Migrator) ImportFromFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m.resetStats()
	start := time.Now()

	sem := semaphore.NewWeighted(m.workers)
	g, gctx := errgroup.WithContext(ctx)

	var batch []*models.Account
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.count(func(s *Stats) { s.Read++ })

		username, password, ok := strings.Cut(line, ":")
		username = strings.TrimSpace(username)
		if !ok || username == "" {
			m.count(func(s *Stats) { s.Skipped++ })
			continue
		}

		batch = append(batch, &models.Account{
			Username: username,
			Password: strings.TrimSpace(password),
			IsValid:  true,
		})
		if len(batch) >= m.batchSize {
			m.spawnBatch(gctx, g, sem, batch)
			batch = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return m.snapshot(start), fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(batch) > 0 {
		m.spawnBatch(gctx, g, sem, batch)
	}

	err = g.Wait()
	stats := m.snapshot(start)
	logImport("file", stats)
	return stats, err
}

func (m *Migrator) spawnBatch(ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted, batch []*models.Account) {
	if err := sem.Acquire(ctx, 1); err != nil {
		m.count(func(s *Stats) { s.Failed += len(batch) })
		return
	}
	g.Go(func() error {
		defer sem.Release(1)
		m.importBatch(ctx, batch)
		return nil
	})
}

// importBatch upserts one batch. Individual failures are counted and
// logged, not fatal: the operator wants the rest of the file imported.
func (m *Migrator) importBatch(ctx context.Context, batch []*models.Account) {
	created, updated, failed := 0, 0, 0
	for _, account := range batch {
		isNew, err := m.accounts.UpsertByUsername(ctx, account)
		if err != nil {
			failed++
			slog.Error("Failed to import account",
				slog.String("type", "import"),
				slog.String("account", account.Username),
				slog.Any("error", err))
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	m.count(func(s *Stats) {
		s.Created += created
		s.Updated += updated
		s.Failed += failed
	})
	slog.Info("Imported batch",
		slog.String("type", "import"),
		slog.Int("created", created),
		slog.Int("updated", updated),
		slog.Int("failed", failed))
}

func convertAccount(doc MongoAccount) (*models.Account, bool) {
	username := strings.TrimSpace(doc.Username)
	if username == "" {
		return nil, false
	}

	token := doc.AccessToken
	if token == "" {
		token = doc.Token
	}
	valid := true
	if doc.IsValid != nil {
		valid = *doc.IsValid
	}

	return &models.Account{
		Username:    username,
		Password:    doc.Password,
		AccessToken: token,
		UserID:      doc.UserID,
		IsValid:     valid,
	}, true
}

func (m *Migrator) resetStats() {
	m.mu.Lock()
	m.stats = Stats{}
	m.mu.Unlock()
}

func (m *Migrator) count(fn func(*Stats)) {
	m.mu.Lock()
	fn(&m.stats)
	m.mu.Unlock()
}

func (m *Migrator) snapshot(start time.Time) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Duration = time.Since(start).Round(time.Millisecond)
	return stats
}

func logImport(source string, stats Stats) {
	slog.Info("Import finished",
		slog.String("type", "import"),
		slog.String("source", source),
		slog.Int("read", stats.Read),
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
}
