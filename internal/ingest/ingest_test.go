package ingest_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/arc-self/dialpad-broker/internal/credential"
	"github.com/arc-self/dialpad-broker/internal/ingest"
	"github.com/arc-self/dialpad-broker/internal/store/db"
	"github.com/arc-self/dialpad-broker/internal/store/dbmock"
	"github.com/arc-self/dialpad-broker/internal/tenant"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Signature correctness: accepts exactly the base64 HMAC-SHA256 of the
// body under the secret, rejects any single-bit mutation.
func TestVerifySignature_AcceptsExactMatch(t *testing.T) {
	body := []byte(`{"event_type":"call.ring"}`)
	secret := "S"
	good := sign(body, secret)
	assert.True(t, ingest.VerifySignature(body, good, secret))
}

func TestVerifySignature_RejectsMutatedBody(t *testing.T) {
	body := []byte(`{"event_type":"call.ring"}`)
	secret := "S"
	good := sign(body, secret)
	mutated := []byte(`{"event_type":"call.rinG"}`)
	assert.False(t, ingest.VerifySignature(mutated, good, secret))
}

func TestVerifySignature_RejectsMutatedSecret(t *testing.T) {
	body := []byte(`{"event_type":"call.ring"}`)
	good := sign(body, "S")
	assert.False(t, ingest.VerifySignature(body, good, "T"))
}

func TestVerifySignature_RejectsMutatedSignature(t *testing.T) {
	body := []byte(`{"event_type":"call.ring"}`)
	secret := "S"
	good := sign(body, secret)
	bad := good[:len(good)-1] + "x"
	assert.False(t, ingest.VerifySignature(body, bad, secret))
}

// A timing-difference test bounding the variance of the comparison: the
// constant-time compare means rejecting a correct-length-but-wrong
// signature and a wildly different one should take comparable time. This
// is a coarse smoke check, not a statistical timing attack harness.
func TestVerifySignature_ConstantTimeComparisonDoesNotShortCircuitObviously(t *testing.T) {
	body := []byte(`{"event_type":"call.ring"}`)
	secret := "S"
	good := sign(body, secret)
	almostRight := good[:len(good)-1] + "0"
	wrongEverywhere := make([]byte, len(good))
	for i := range wrongEverywhere {
		wrongEverywhere[i] = '0'
	}

	const trials = 200
	var nearTotal, farTotal time.Duration
	for i := 0; i < trials; i++ {
		start := time.Now()
		ingest.VerifySignature(body, almostRight, secret)
		nearTotal += time.Since(start)

		start = time.Now()
		ingest.VerifySignature(body, string(wrongEverywhere), secret)
		farTotal += time.Since(start)
	}
	// Both paths run the same subtle.ConstantTimeCompare on equal-length
	// slices; assert the near-match path is not drastically (10x) slower
	// than the far one, which is what an early-exit comparison would show.
	ratio := float64(nearTotal) / float64(farTotal)
	assert.InDelta(t, 1.0, ratio, 9.0, "comparison time should not vary wildly by near/far match")
}

func mustPgUUID(s string) pgtype.UUID {
	var u pgtype.UUID
	_ = u.Scan(s)
	return u
}

// Ingest idempotency: two concurrent POSTs carrying the same upstream
// event id must both see success and only one queue row is created. This
// test exercises the single-call contract; internal/store/db's ON
// CONFLICT clause is what actually arbitrates the race at the database.
func TestIngest_DuplicateUpstreamEventIDIsNotAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	logger := zap.NewNop()

	appID := mustPgUUID("11111111-1111-1111-1111-111111111111")
	cred := credential.NewManager(nil, mockQ, "pepper")
	resolver := tenant.NewResolver(mockQ, cred)
	ig := ingest.New(mockQ, resolver, "S", logger)

	body := []byte(`{"event_type":"call.ring","organization_id":42}`)
	sig := sign(body, "S")

	mockQ.EXPECT().GetUpstreamBindingByOrgID(gomock.Any(), "42").Return(db.UpstreamBinding{AppID: appID}, nil).Times(2)

	existingRow := db.RawEvent{ID: mustPgUUID("22222222-2222-2222-2222-222222222222"), AppID: appID}
	mockQ.EXPECT().InsertRawEvent(gomock.Any(), gomock.Any()).Return(true, existingRow, nil)
	mockQ.EXPECT().InsertRawEvent(gomock.Any(), gomock.Any()).Return(false, existingRow, nil)

	res1, err := ig.Ingest(context.Background(), body, sig, "", "call.ring", "evt-9999")
	require.NoError(t, err)
	assert.False(t, res1.Duplicate)

	res2, err := ig.Ingest(context.Background(), body, sig, "", "call.ring", "evt-9999")
	require.NoError(t, err)
	assert.True(t, res2.Duplicate)
}

func TestIngest_BadSignatureIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockQ := dbmock.NewMockQuerier(ctrl)
	logger := zap.NewNop()
	cred := credential.NewManager(nil, mockQ, "pepper")
	resolver := tenant.NewResolver(mockQ, cred)
	ig := ingest.New(mockQ, resolver, "S", logger)

	body := []byte(`{"event_type":"call.ring"}`)
	_, err := ig.Ingest(context.Background(), body, "not-the-right-signature", "", "call.ring", "evt-1")
	require.ErrorIs(t, err, ingest.ErrBadSignature)
}
