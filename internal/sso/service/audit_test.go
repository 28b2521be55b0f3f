package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
)

func TestDiffJSON(t *testing.T) {
	var d Diff
	diffField(&d, "name", "a", "a")
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"diff","data":[]}`, string(b))

	diffField(&d, "name", "a", "b")
	diffField(&d, "enabled", true, false)
	b, err = json.Marshal(d)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"diff","data":[["name","a","b"],["enabled",true,false]]}`, string(b))
}

func TestOutcomeRecordsAttribution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	user, key := h.newUser(t, svcKey, "a@example.com", "password1")

	_, err := h.auth.Login(ctx, h.meta, svcKey, LoginRequest{Email: "a@example.com", Password: "password1"})
	require.NoError(t, err)

	a := h.lastAudit(t, domain.AuditLocalLogin)
	require.Equal(t, svc.ID, a.ServiceID)
	require.Equal(t, user.ID, a.UserID)
	require.Equal(t, key.ID, a.UserKeyID)
	require.NotEmpty(t, a.KeyID)
	require.Equal(t, h.meta, a.Meta)
	require.JSONEq(t, `{}`, string(a.Data))

	_, err = h.auth.Login(ctx, h.meta, svcKey, LoginRequest{Email: "a@example.com", Password: "password2"})
	require.ErrorIs(t, err, ErrBadRequest)
	a = h.lastAudit(t, domain.AuditLocalLogin)
	require.Equal(t, "bad_request: password incorrect", auditErrorText(t, a))

	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuditRecords.WithLabelValues(string(domain.AuditLocalLogin), "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuditRecords.WithLabelValues(string(domain.AuditLocalLogin), "ok")))
}

func TestAuditServiceMasking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc, svcKey := h.newService(t, "bartab")
	other, otherKey := h.newService(t, "other")

	mine, err := h.audits.Create(ctx, h.meta, svcKey, AuditCustom{Type: "bartab.order", Subject: "order-1", Data: json.RawMessage(`{"total":12}`)})
	require.NoError(t, err)
	require.Equal(t, svc.ID, mine.ServiceID)
	_, err = h.audits.Create(ctx, h.meta, otherKey, AuditCustom{Type: "other.thing"})
	require.NoError(t, err)

	_, err = h.audits.Read(ctx, h.meta, otherKey, mine.ID)
	require.ErrorIs(t, err, ErrNotFound)
	got, err := h.audits.Read(ctx, h.meta, h.rootKey, mine.ID)
	require.NoError(t, err)
	require.Equal(t, "order-1", got.Subject)

	list, err := h.audits.List(ctx, h.meta, otherKey, domain.AuditListQuery{}, domain.AuditListFilter{})
	require.NoError(t, err)
	for _, a := range list {
		require.Equal(t, other.ID, a.ServiceID)
	}

	list, err = h.audits.List(ctx, h.meta, h.rootKey, domain.AuditListQuery{},
		domain.AuditListFilter{Types: []string{"bartab.order"}})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = h.audits.List(ctx, h.meta, h.rootKey, domain.AuditListQuery{AfterID: "a", BeforeID: "b"}, domain.AuditListFilter{})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestAuditListCreatedBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")

	start := h.clock.Now()
	h.clock.Advance(time.Hour)
	_, err := h.audits.Create(ctx, h.meta, svcKey, AuditCustom{Type: "bartab.late"})
	require.NoError(t, err)

	before := start.Add(time.Minute)
	list, err := h.audits.List(ctx, h.meta, svcKey, domain.AuditListQuery{CreatedLE: &before},
		domain.AuditListFilter{Types: []string{"bartab.late"}})
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = h.audits.List(ctx, h.meta, svcKey, domain.AuditListQuery{CreatedGE: &before},
		domain.AuditListFilter{Types: []string{"bartab.late"}})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAuditCustomValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")

	tests := []struct {
		name string
		req  AuditCustom
	}{
		{"missing type", AuditCustom{}},
		{"reserved prefix", AuditCustom{Type: "sso.auth.local.login"}},
		{"invalid data", AuditCustom{Type: "bartab.x", Data: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.audits.Create(ctx, h.meta, svcKey, tt.req)
			require.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

func TestAuditUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, svcKey := h.newService(t, "bartab")

	a, err := h.audits.Create(ctx, h.meta, svcKey, AuditCustom{Type: "bartab.order", Subject: "pending"})
	require.NoError(t, err)

	subject := "paid"
	out, err := h.audits.Update(ctx, h.meta, svcKey, a.ID, domain.AuditUpdate{Subject: &subject})
	require.NoError(t, err)
	require.Equal(t, "paid", out.Subject)

	rec := h.lastAudit(t, domain.AuditAuditUpdate)
	require.Equal(t, a.ID, rec.Subject)
	require.JSONEq(t, `{"type":"diff","data":[["subject","pending","paid"]]}`, string(rec.Data))

	// Built in records are immutable.
	builtin := h.lastAudit(t, domain.AuditAuditCreate)
	_, err = h.audits.Update(ctx, h.meta, svcKey, builtin.ID, domain.AuditUpdate{Subject: &subject})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultListLimit, clampLimit(0))
	require.Equal(t, DefaultListLimit, clampLimit(-5))
	require.Equal(t, 10, clampLimit(10))
	require.Equal(t, MaxListLimit, clampLimit(MaxListLimit+1))
}
