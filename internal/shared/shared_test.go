package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	seen map[string]bool
	err  error
	sql  []string
	args [][]any
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	key, _ := args[0].(string)
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if len(args) == 3 {
		module, _ := args[1].(string)
		if f.seen[key+"/"+module] {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		}
		f.seen[key+"/"+module] = true
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func TestIdempotencyStoreRejectsDuplicates(t *testing.T) {
	fake := &fakeExecer{}
	store := &IdempotencyStore{db: fake, now: time.Now}
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "abc", "sale"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "abc", "sale"), ErrIdempotencyConflict)
	require.ErrorIs(t, store.CheckAndInsert(ctx, "", "sale"), ErrIdempotencyKeyRequired)
	require.ErrorIs(t, store.CheckAndInsert(ctx, "k", ""), ErrIdempotencyModuleRequired)
}

func TestIdempotencyKeysAreScopedPerModule(t *testing.T) {
	fake := &fakeExecer{}
	store := &IdempotencyStore{db: fake, now: time.Now}
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "abc", "sale"))
	require.NoError(t, store.CheckAndInsert(ctx, "abc", "purchase"))

	require.NoError(t, store.Delete(ctx, "abc", "sale"))
	last := len(fake.sql) - 1
	require.Contains(t, fake.sql[last], "module=$2")
	require.Equal(t, []any{"abc", "sale"}, fake.args[last])
	require.ErrorIs(t, store.Delete(ctx, "abc", ""), ErrIdempotencyModuleRequired)
}

func TestIdempotencyStoreCleanup(t *testing.T) {
	fake := &fakeExecer{}
	store := &IdempotencyStore{db: fake, now: time.Now}

	n, err := store.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	fake.err = errors.New("down")
	_, err = store.Cleanup(context.Background(), time.Hour)
	require.Error(t, err)
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasNext)
	require.True(t, p.HasPrev)

	p = NewPagination(0, 0, 0)
	require.Equal(t, 1, p.Page)
	require.Equal(t, DefaultPerPage, p.PerPage)
	require.False(t, p.HasNext)

	require.Equal(t, 20, Offset(3, 10))
	_, per := NormalizePage(1, 1000)
	require.Equal(t, MaxPerPage, per)
}

func TestActorContext(t *testing.T) {
	require.Equal(t, uuid.Nil, ActorFromContext(context.Background()))
	id := uuid.New()
	require.Equal(t, id, ActorFromContext(ContextWithActor(context.Background(), id)))
	require.Equal(t, "doc:sale:"+id.String(), DocumentLockKey("sale", id))
}
