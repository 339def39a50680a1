package approval

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/errors"
	"github.com/Rth2608/CRE-Autonomous-agents-Workspace/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), logging.NopLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &Request{Reason: "quarantine_block", Detail: "host not allow-listed"}
	if err := s.Create(ctx, req); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if req.ID == "" || !strings.HasPrefix(req.ID, "req_") {
		t.Errorf("ID = %q, want req_ prefix", req.ID)
	}
	if req.Status != StatusPending {
		t.Errorf("Status = %q, want pending", req.Status)
	}
	if req.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if req.DedupHash == "" {
		t.Error("DedupHash should be assigned on create")
	}

	got, err := s.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Reason != "quarantine_block" || got.Detail != "host not allow-listed" {
		t.Errorf("Get() = %+v, want the created request back", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "req_0_missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestApproveAndReject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Request{Reason: "quarantine_block", Detail: "first"}
	b := &Request{Reason: "synthesis_exhausted", Detail: "second"}
	for _, req := range []*Request{a, b} {
		if err := s.Create(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	approved, err := s.Approve(ctx, a.ID, "operator", "looks fine")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != StatusApproved || approved.ResolvedBy != "operator" {
		t.Errorf("approved = %+v", approved)
	}
	if approved.ResolvedAt == nil {
		t.Error("ResolvedAt should be set")
	}
	if approved.Note != "looks fine" {
		t.Errorf("Note = %q", approved.Note)
	}

	rejected, err := s.Reject(ctx, b.ID, "operator", "")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("Status = %q, want rejected", rejected.Status)
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("Pending() = %d requests, want 0", len(pending))
	}
}

func TestResolveOnlyPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &Request{Reason: "quarantine_block"}
	if err := s.Create(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Approve(ctx, req.ID, "operator", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Approve(ctx, req.ID, "operator", ""); !errors.Is(err, errors.ErrAlreadyResolved) {
		t.Errorf("second Approve error = %v, want ErrAlreadyResolved", err)
	}
	if _, err := s.Reject(ctx, req.ID, "operator", ""); !errors.Is(err, errors.ErrAlreadyResolved) {
		t.Errorf("Reject after Approve error = %v, want ErrAlreadyResolved", err)
	}
}

func TestPendingOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{"req_100_aaaaaaaa", "req_200_bbbbbbbb", "req_300_cccccccc"}
	for i, id := range ids {
		req := &Request{ID: id, Reason: "quarantine_block", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Create(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 {
		t.Fatalf("Pending() = %d, want 3", len(pending))
	}
	for i, req := range pending {
		if req.ID != ids[i] {
			t.Errorf("pending[%d] = %s, want %s (oldest first)", i, req.ID, ids[i])
		}
	}
}

func TestFindPendingByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash := DedupHash("quarantine_block", "cycle-7", "host evil.example.com blocked")
	req := &Request{Reason: "quarantine_block", Detail: "host evil.example.com blocked", DedupHash: hash}
	if err := s.Create(ctx, req); err != nil {
		t.Fatal(err)
	}

	found, err := s.FindPendingByHash(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != req.ID {
		t.Errorf("FindPendingByHash() = %v, want the created request", found)
	}

	if _, err := s.Approve(ctx, req.ID, "operator", ""); err != nil {
		t.Fatal(err)
	}
	found, err = s.FindPendingByHash(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if found != nil {
		t.Errorf("resolved request should not match, got %v", found)
	}
}

func TestDedupHash(t *testing.T) {
	base := DedupHash("quarantine_block", "cycle-7", "Host blocked")

	if got := DedupHash("QUARANTINE_BLOCK", "  cycle-7 ", "host   blocked"); got != base {
		t.Error("hash should be case and whitespace insensitive")
	}
	if got := DedupHash("quarantine_block", "cycle-8", "Host blocked"); got == base {
		t.Error("different context labels should hash differently")
	}

	long := strings.Repeat("x", 2000)
	a := DedupHash("r", "c", long+"tail-one")
	b := DedupHash("r", "c", long+"tail-two")
	if a != b {
		t.Error("detail beyond the truncation limit should not affect the hash")
	}
}
