package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/gen"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/samber/lo"
)

var dbSeq atomic.Int64

// NewTestDB opens a migrated in-memory SQLite database private to the test.
// The connection is closed when the test finishes.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	url := fmt.Sprintf("sqlite://file:linkpay_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	d, err := db.Open(context.Background(), url)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		_ = d.Close()
	})

	return d
}

func NewSnowflake(t *testing.T) *gen.SnowflakeNode {
	t.Helper()

	node, err := gen.NewSnowflakeNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return node
}

type User struct {
	ID          int64
	Role        string
	Balance     money.Micros
	FraudScore  int
	Banned      bool
	LastLoginIP string
}

func CreateUser(t *testing.T, d *db.DB, u User) {
	t.Helper()

	err := repo.NewUsersRepo(d).Create(context.Background(), repo.UserRow{
		ID:            u.ID,
		Email:         fmt.Sprintf("user%d@example.com", u.ID),
		Role:          u.Role,
		WalletBalance: u.Balance,
		TotalEarnings: u.Balance,
		FraudScore:    u.FraudScore,
		IsBanned:      u.Banned,
		LastLoginIP:   lo.EmptyableToPtr(u.LastLoginIP),
	})
	if err != nil {
		t.Fatalf("failed to create user %d: %v", u.ID, err)
	}
}

const (
	// AdFormatMultitag and AdFormatPopunder are the formats seeded by the
	// schema, at 120.00 and 100.00 CPM.
	AdFormatMultitag = 1
	AdFormatPopunder = 2
)

type Link struct {
	ID         int64
	Code       string
	OwnerID    int64
	Monetized  bool
	AdFormatID int64
	Inactive   bool
}

func CreateLink(t *testing.T, d *db.DB, l Link) {
	t.Helper()

	err := repo.NewLinksRepo(d).Create(context.Background(), repo.LinkRow{
		ID:          l.ID,
		Code:        l.Code,
		Destination: "https://example.com/" + l.Code,
		OwnerID:     lo.EmptyableToPtr(l.OwnerID),
		Monetized:   l.Monetized,
		AdFormatID:  lo.EmptyableToPtr(l.AdFormatID),
		Active:      !l.Inactive,
	})
	if err != nil {
		t.Fatalf("failed to create link %q: %v", l.Code, err)
	}
}

// Exec runs raw SQL against the test database, for fixtures the repository
// layer has no method for.
func Exec(t *testing.T, d *db.DB, query string, args ...any) {
	t.Helper()

	if _, err := d.SQL.Exec(query, args...); err != nil {
		t.Fatalf("failed to exec %q: %v", query, err)
	}
}
