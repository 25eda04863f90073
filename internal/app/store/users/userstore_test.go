package userstore

import (
	"testing"

	"github.com/dalemusser/stratalog/internal/domain/models"
	"github.com/dalemusser/stratalog/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{
		FullName: "  Test User ",
		LoginID:  " Alice@Example.com",
		Role:     "Admin",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if created.ID.IsZero() {
		t.Error("Create() did not assign ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
	if created.Status != models.StatusActive {
		t.Errorf("Status = %q, want %q", created.Status, models.StatusActive)
	}
	if created.AuthMethod != models.AuthPassword {
		t.Errorf("AuthMethod = %q, want %q", created.AuthMethod, models.AuthPassword)
	}
	if created.LoginID != "alice@example.com" {
		t.Errorf("LoginID = %q, want normalized", created.LoginID)
	}
	if created.FullName != "Test User" || created.FullNameCI == "" || created.LoginIDCI == "" {
		t.Errorf("normalization incomplete: %+v", created)
	}
	if created.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want %q", created.Role, models.RoleAdmin)
	}
}

func TestStore_Create_Invalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tests := []struct {
		name string
		user models.User
	}{
		{"no login id", models.User{FullName: "x", Role: models.RoleViewer}},
		{"bad role", models.User{LoginID: "a", Role: "owner"}},
		{"bad status", models.User{LoginID: "b", Role: models.RoleViewer, Status: "pending"}},
		{"bad auth method", models.User{LoginID: "c", Role: models.RoleViewer, AuthMethod: "google"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.Create(ctx, tt.user); err == nil {
				t.Error("Create() should return error")
			}
		})
	}
}

func TestStore_Create_DuplicateLoginID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.User{LoginID: "dup@example.com", Role: models.RoleViewer}); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := store.Create(ctx, models.User{LoginID: "DUP@example.com", Role: models.RoleViewer})
	if err != ErrDuplicateLoginID {
		t.Errorf("second Create() error = %v, want ErrDuplicateLoginID", err)
	}
}

func TestStore_GetByLoginID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{LoginID: "José@example.com", Role: models.RoleViewer})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByLoginID(ctx, "JOSE@EXAMPLE.COM")
	if err != nil {
		t.Fatalf("GetByLoginID() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetByLoginID() ID = %v, want %v", got.ID, created.ID)
	}

	if _, err := store.GetByLoginID(ctx, "nobody"); err != mongo.ErrNoDocuments {
		t.Errorf("GetByLoginID(missing) error = %v, want ErrNoDocuments", err)
	}

	exists, err := store.ExistsByLoginID(ctx, "jose@example.com")
	if err != nil || !exists {
		t.Errorf("ExistsByLoginID() = %v, %v", exists, err)
	}
}

func TestStore_SetStatusAndPassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := store.Create(ctx, models.User{LoginID: "admin", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := store.CountActiveAdmins(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountActiveAdmins() = %d, %v; want 1", n, err)
	}

	if err := store.SetStatus(ctx, u.ID, models.StatusDisabled); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if n, _ := store.CountActiveAdmins(ctx); n != 0 {
		t.Errorf("CountActiveAdmins() after disable = %d, want 0", n)
	}
	if err := store.SetStatus(ctx, u.ID, "gone"); err == nil {
		t.Error("SetStatus(invalid) should return error")
	}

	if err := store.UpdatePassword(ctx, u.ID, "hash"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}
	got, _ := store.GetByID(ctx, u.ID)
	if got.PasswordHash == nil || *got.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %v, want hash", got.PasswordHash)
	}
}

func TestFetcher_FetchUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	fetcher := NewFetcher(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := store.Create(ctx, models.User{FullName: "Alice", LoginID: "alice", Role: models.RoleViewer})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	su := fetcher.FetchUser(ctx, u.ID.Hex())
	if su == nil {
		t.Fatal("FetchUser() = nil")
	}
	if su.LoginID != "alice" || su.Name != "Alice" || su.Role != models.RoleViewer {
		t.Errorf("FetchUser() = %+v", su)
	}

	if got := fetcher.FetchUser(ctx, "not-an-id"); got != nil {
		t.Error("FetchUser(bad id) should be nil")
	}
	if got := fetcher.FetchUser(ctx, primitive.NewObjectID().Hex()); got != nil {
		t.Error("FetchUser(missing) should be nil")
	}

	_ = store.SetStatus(ctx, u.ID, models.StatusDisabled)
	if got := fetcher.FetchUser(ctx, u.ID.Hex()); got != nil {
		t.Error("FetchUser(disabled) should be nil")
	}
}
