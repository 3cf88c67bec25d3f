package integration

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/vilass86/cardgame/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func connectDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	dbp, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(dbp.Close)
	applyMigrationsToPool(t, dbp)
	return dbp
}

func applyMigrationsToPool(t *testing.T, dbp *pgxpool.Pool) {
	t.Helper()
	migDir := filepath.Join("..", "migrations")
	files, err := os.ReadDir(migDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(migDir, name))
		if err != nil {
			t.Fatalf("read file: %v", err)
		}
		if _, err := dbp.Exec(context.Background(), string(b)); err != nil {
			t.Fatalf("apply migration %s: %v", name, err)
		}
	}
}

// addr returns an address unique to this run so reruns against one database
// do not collide.
func addr(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

// captureOracle records requests so the test can answer them itself.
type captureOracle struct {
	mu   sync.Mutex
	reqs []*domain.RandomnessRequest
}

func (o *captureOracle) Submit(_ context.Context, req *domain.RandomnessRequest) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reqs = append(o.reqs, req.Clone())
	return nil
}

func (o *captureOracle) last() *domain.RandomnessRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.reqs) == 0 {
		return nil
	}
	return o.reqs[len(o.reqs)-1]
}
