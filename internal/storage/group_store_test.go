package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool-match/internal/models"
)

func TestMemoryGroupStoreMembership(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGroupStore()
	g := &models.CarpoolGroup{ID: "g1", Name: "Early shift", MemberIDs: []string{"b", "a", "b"}}
	if err := m.Create(ctx, g); err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}

	if err := m.AddMember(ctx, "g1", "c"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.AddMember(ctx, "g1", "c"); err != nil {
		t.Fatalf("add twice: %v", err)
	}
	if err := m.RemoveMember(ctx, "g1", "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.RemoveMember(ctx, "g1", "nobody"); err != nil {
		t.Fatalf("remove non-member: %v", err)
	}

	got, err := m.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if want := []string{"b", "c"}; !reflect.DeepEqual(got.MemberIDs, want) {
		t.Fatalf("members = %v, want %v", got.MemberIDs, want)
	}

	got.MemberIDs[0] = "mutated"
	again, _ := m.Get(ctx, "g1")
	if again.MemberIDs[0] != "b" {
		t.Fatal("Get returned shared member slice")
	}
}

func TestMemoryGroupStoreListByMember(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGroupStore()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, g := range []*models.CarpoolGroup{
		{ID: "late", Name: "Late", MemberIDs: []string{"x"}, CreatedAt: base.Add(time.Hour)},
		{ID: "b", Name: "B", MemberIDs: []string{"x", "y"}, CreatedAt: base},
		{ID: "a", Name: "A", MemberIDs: []string{"x"}, CreatedAt: base},
		{ID: "other", Name: "Other", MemberIDs: []string{"y"}, CreatedAt: base},
	} {
		if err := m.Create(ctx, g); err != nil {
			t.Fatalf("create %s: %v", g.ID, err)
		}
	}

	groups, err := m.ListByMember(ctx, "x")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, g := range groups {
		got = append(got, g.ID)
	}
	if want := []string{"a", "b", "late"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}

	none, err := m.ListByMember(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Fatalf("ListByMember(nobody) = %v, %v", none, err)
	}
}

func TestMemoryGroupStoreMissingGroup(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryGroupStore()
	checks := map[string]error{
		"get":    func() error { _, err := m.Get(ctx, "nope"); return err }(),
		"delete": m.Delete(ctx, "nope"),
		"add":    m.AddMember(ctx, "nope", "a"),
		"remove": m.RemoveMember(ctx, "nope", "a"),
	}
	for op, err := range checks {
		if !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("%s: got %v, want ErrGroupNotFound", op, err)
		}
	}

	if err := m.Create(ctx, &models.CarpoolGroup{ID: "g", Name: "G"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "g"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, "g"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
}

func TestMembershipErrorMapsForeignKeys(t *testing.T) {
	other := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"group", &pq.Error{Code: pqForeignKeyViolation, Constraint: "carpool_group_members_group_id_fkey"}, ErrGroupNotFound},
		{"commuter", &pq.Error{Code: pqForeignKeyViolation, Constraint: "carpool_group_members_commuter_id_fkey"}, ErrNotFound},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: pqForeignKeyViolation, Constraint: "carpool_group_members_commuter_id_fkey"}), ErrNotFound},
		{"other pq code", &pq.Error{Code: "23505", Constraint: "carpool_group_members_pkey"}, nil},
		{"plain", other, other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := membershipError(tt.in)
			switch {
			case tt.in == nil:
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
			case tt.want == nil:
				if got != tt.in {
					t.Fatalf("got %v, want input unchanged", got)
				}
			case !errors.Is(got, tt.want):
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
