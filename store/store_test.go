package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/widgetkit/session"
	"github.com/spektr-org/widgetkit/widget"
)

var _ session.Notifier = (*Notifier)(nil)

func sample(id, reportType string) widget.State {
	limit := 25
	return widget.State{
		ID:   id,
		Type: reportType,
		Query: widget.Query{
			"assignee": []any{"u1", "u2"},
			"partial_match": map[string]any{
				"project": map[string]any{"$begins": "ABC"},
			},
		},
		Metadata:   widget.Metadata{"last_sprint": true},
		Weights:    map[string]float64{"IDLE": 40},
		MaxRecords: &limit,
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "widgets"))
	require.NoError(t, err)

	sq, err := OpenSQL(ctx, "sqlite3", filepath.Join(t.TempDir(), "widgets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{"file": fs, "sqlite": sq}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := sample("w-1", "tickets_report")

			require.NoError(t, st.Put(ctx, in))
			got, err := st.Get(ctx, "w-1")
			require.NoError(t, err)
			if diff := cmp.Diff(in, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStorePutReplaces(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Put(ctx, sample("w-1", "tickets_report")))

			next := sample("w-1", "azure_tickets_report")
			next.Query = widget.Query{}
			require.NoError(t, st.Put(ctx, next))

			got, err := st.Get(ctx, "w-1")
			require.NoError(t, err)
			assert.Equal(t, "azure_tickets_report", got.Type)
			assert.Empty(t, got.Query)
		})
	}
}

func TestStoreListAndDelete(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Put(ctx, sample("b", "tickets_report")))
			require.NoError(t, st.Put(ctx, sample("a", "hygiene_report")))

			all, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "b", all[1].ID)

			require.NoError(t, st.Delete(ctx, "a"))
			_, err = st.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, st.Delete(ctx, "a"), ErrNotFound)
		})
	}
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = fs.Put(context.Background(), sample("../escape", "tickets_report"))
	assert.Error(t, err)
	_, err = fs.Get(context.Background(), "a/b")
	assert.Error(t, err)
}

type failingStore struct{ Store }

func (failingStore) Put(context.Context, widget.State) error { return errors.New("disk full") }

func TestNotifierPersistsCommits(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	n := NewNotifier(fs, nil)

	require.NoError(t, n.OnUpdate(ctx, sample("w-9", "tickets_report"), true))
	got, err := fs.Get(ctx, "w-9")
	require.NoError(t, err)
	assert.Equal(t, "tickets_report", got.Type)

	err = NewNotifier(failingStore{}, nil).OnUpdate(ctx, sample("w-9", "tickets_report"), false)
	assert.EqualError(t, err, "disk full")
}
