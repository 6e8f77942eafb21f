package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openintentos/openintent/internal/store"
)

func TestCreateAndAuthenticateUser(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	u, err := st.CreateUser(ctx, "alice", "Alice", "s3cret", store.RoleAdmin)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" || !u.Active {
		t.Fatalf("user = %+v", u)
	}

	got, err := st.Authenticate(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.Username != "alice" || got.Role != store.RoleAdmin {
		t.Fatalf("got %+v", got)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if _, err := st.CreateUser(ctx, "bob", "", "right", store.RoleUser); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := st.Authenticate(ctx, "bob", "wrong"); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := st.Authenticate(ctx, "nobody", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInactiveUserCannotAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if _, err := st.CreateUser(ctx, "carol", "", "pw", store.RoleViewer); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SetActive(ctx, "carol", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := st.Authenticate(ctx, "carol", "pw"); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	if err := st.SetActive(ctx, "carol", true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := st.Authenticate(ctx, "carol", "pw"); err != nil {
		t.Fatalf("authenticate after reactivation: %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	if _, err := st.CreateUser(ctx, "dave", "", "old", store.RoleUser); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.UpdatePassword(ctx, "dave", "new"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := st.Authenticate(ctx, "dave", "old"); err == nil {
		t.Fatal("old password still accepted")
	}
	if _, err := st.Authenticate(ctx, "dave", "new"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}

	if err := st.UpdatePassword(ctx, "ghost", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if _, err := st.CreateUser(ctx, "", "", "pw", store.RoleUser); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("empty username: %v", err)
	}
	if _, err := st.CreateUser(ctx, "eve", "", "pw", store.UserRole("owner")); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("bad role: %v", err)
	}

	if _, err := st.CreateUser(ctx, "frank", "", "pw", store.RoleUser); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreateUser(ctx, "frank", "", "pw", store.RoleUser); err == nil {
		t.Fatal("duplicate username accepted")
	}
}

func TestListUsersOrderedByUsername(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	for _, name := range []string{"zoe", "ana", "mike"} {
		if _, err := st.CreateUser(ctx, name, "", "pw", store.RoleUser); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len = %d", len(users))
	}
	for i, want := range []string{"ana", "mike", "zoe"} {
		if users[i].Username != want {
			t.Errorf("users[%d] = %q, want %q", i, users[i].Username, want)
		}
	}
}
