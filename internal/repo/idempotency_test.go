package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/wa-intercom-relay/internal/domain"
)

const twi = domain.DirectionTwilioToIntercom

func TestGetIdempotency_Missing(t *testing.T) {
	db := newTestDB(t)
	rec, err := GetIdempotency(context.Background(), db, "SM404", twi)
	assert.Nil(t, rec)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInsertIdempotencyIfAbsent_FirstWinsSecondSeesExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, inserted, err := InsertIdempotencyIfAbsent(ctx, db, "SM1", twi)
	require.NoError(t, err)
	require.True(t, inserted)
	assert.Equal(t, domain.IdemProcessing, first.Status)

	second, inserted, err := InsertIdempotencyIfAbsent(ctx, db, "SM1", twi)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)

	var n int64
	db.Model(&domain.IdempotencyRecord{}).Where("key = ?", "SM1").Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestInsertIdempotencyIfAbsent_ExistingReturnedUnchanged(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, MarkIdempotencyFailed(ctx, db, "SM2", twi, domain.CodeRateLimited))

	rec, inserted, err := InsertIdempotencyIfAbsent(ctx, db, "SM2", twi)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, domain.IdemFailed, rec.Status)
	assert.Equal(t, domain.CodeRateLimited, rec.LastErrorCode)
}

func TestInsertIdempotencyIfAbsent_ConcurrentSingleOwner(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "idem.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inserted, err := InsertIdempotencyIfAbsent(context.Background(), db, "SMC", twi)
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				owners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, owners)
}

func TestReclaimFailedIdempotency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := ReclaimFailedIdempotency(ctx, db, "SM3", twi)
	require.NoError(t, err)
	assert.False(t, ok, "nothing to reclaim")

	require.NoError(t, MarkIdempotencyFailed(ctx, db, "SM3", twi, domain.CodeIntercomError))
	ok, err = ReclaimFailedIdempotency(ctx, db, "SM3", twi)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := GetIdempotency(ctx, db, "SM3", twi)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemProcessing, rec.Status)
	assert.Empty(t, rec.LastErrorCode)

	ok, err = ReclaimFailedIdempotency(ctx, db, "SM3", twi)
	require.NoError(t, err)
	assert.False(t, ok, "second reclaim must lose")
}

func TestMarkIdempotencyDone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, MarkIdempotencyDone(ctx, db, "absent", twi))
	_, err := GetIdempotency(ctx, db, "absent", twi)
	assert.True(t, errors.Is(err, ErrNotFound), "done on a missing key must not insert")

	_, _, err = InsertIdempotencyIfAbsent(ctx, db, "SM4", twi)
	require.NoError(t, err)
	require.NoError(t, MarkIdempotencyDone(ctx, db, "SM4", twi))

	rec, err := GetIdempotency(ctx, db, "SM4", twi)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemDone, rec.Status)
}

func TestMarkIdempotencyFailed_UpdatesExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, _, err := InsertIdempotencyIfAbsent(ctx, db, "SM5", twi)
	require.NoError(t, err)
	require.NoError(t, MarkIdempotencyFailed(ctx, db, "SM5", twi, domain.CodeAuthInvalid))

	rec, err := GetIdempotency(ctx, db, "SM5", twi)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemFailed, rec.Status)
	assert.Equal(t, domain.CodeAuthInvalid, rec.LastErrorCode)

	var n int64
	db.Model(&domain.IdempotencyRecord{}).Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestMarkIdempotencyFailed_LeavesDoneAlone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, _, err := InsertIdempotencyIfAbsent(ctx, db, "SM6", twi)
	require.NoError(t, err)
	require.NoError(t, MarkIdempotencyDone(ctx, db, "SM6", twi))
	require.NoError(t, MarkIdempotencyFailed(ctx, db, "SM6", twi, domain.CodeUnknown))

	rec, err := GetIdempotency(ctx, db, "SM6", twi)
	require.NoError(t, err)
	assert.Equal(t, domain.IdemDone, rec.Status)
	assert.Empty(t, rec.LastErrorCode)

	reclaimed, err := ReclaimFailedIdempotency(ctx, db, "SM6", twi)
	require.NoError(t, err)
	assert.False(t, reclaimed)
}

func TestListStaleIdempotency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, _, err := InsertIdempotencyIfAbsent(ctx, db, "old", twi)
	require.NoError(t, err)
	db.Model(&domain.IdempotencyRecord{}).Where("key = ?", "old").
		Update("updated_at", time.Now().UTC().Add(-time.Hour))
	_, _, err = InsertIdempotencyIfAbsent(ctx, db, "fresh", twi)
	require.NoError(t, err)

	stale, err := ListStaleIdempotency(ctx, db, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].Key)
}
