package postgres

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
)

func script(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
		want    []int64
	}{
		{
			name: "pairs sorted by version",
			files: fstest.MapFS{
				"sql/migrations/0002_carts.up.sql":    script("CREATE TABLE carts (id INT);"),
				"sql/migrations/0002_carts.down.sql":  script("DROP TABLE carts;"),
				"sql/migrations/0001_orders.up.sql":   script("CREATE TABLE orders (id INT);"),
				"sql/migrations/0001_orders.down.sql": script("DROP TABLE orders;"),
				"sql/migrations/README.md":            script("ignored"),
			},
			want: []int64{1, 2},
		},
		{
			name: "missing down script",
			files: fstest.MapFS{
				"sql/migrations/0001_orders.up.sql": script("CREATE TABLE orders (id INT);"),
			},
			wantErr: "needs both up and down",
		},
		{
			name: "bad file name",
			files: fstest.MapFS{
				"sql/migrations/orders.sql": script("SELECT 1;"),
			},
			wantErr: "bad migration file name",
		},
		{
			name: "blank script",
			files: fstest.MapFS{
				"sql/migrations/0001_orders.up.sql":   script("  \n"),
				"sql/migrations/0001_orders.down.sql": script("DROP TABLE orders;"),
			},
			wantErr: "is empty",
		},
		{
			name: "one version two names",
			files: fstest.MapFS{
				"sql/migrations/0001_orders.up.sql":  script("SELECT 1;"),
				"sql/migrations/0001_carts.down.sql": script("SELECT 1;"),
			},
			wantErr: "is used by",
		},
		{
			name:    "no directory",
			files:   fstest.MapFS{},
			wantErr: "read sql/migrations",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := loadMigrationsFromFS(tc.files)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			versions := make([]int64, len(got))
			for i, m := range got {
				versions[i] = m.Version
			}
			require.Equal(t, tc.want, versions)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	all, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Contains(t, all[0].Up, "CREATE TABLE IF NOT EXISTS orders")
	require.Contains(t, all[0].Up, "last_error")
	require.Contains(t, all[1].Up, "idempotency_keys")
	require.Contains(t, all[1].Up, "content_type")
}

func TestPlanUp(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	applied := map[int64]time.Time{1: time.Now()}

	plan := planUp(all, applied, 0)
	require.Len(t, plan, 2)
	require.Equal(t, "up 0002_b", plan[0].String())
	require.Equal(t, int64(3), plan[1].Version)

	require.Len(t, planUp(all, applied, 1), 1)
	require.Empty(t, planUp(all, map[int64]time.Time{1: {}, 2: {}, 3: {}}, 0))
}

func TestPlanDown(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a", Down: "DROP a"}, {Version: 2, Name: "b", Down: "DROP b"}}

	plan, err := planDown(all, map[int64]time.Time{1: {}, 2: {}}, 1)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, "down 0002_b", plan[0].String())
	require.Equal(t, "DROP b", plan[0].script())

	plan, err = planDown(all, map[int64]time.Time{1: {}, 2: {}}, 10)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, int64(1), plan[1].Version)

	plan, err = planDown(all, map[int64]time.Time{}, 1)
	require.NoError(t, err)
	require.Empty(t, plan)

	_, err = planDown(all, map[int64]time.Time{7: {}}, 1)
	require.ErrorContains(t, err, "no embedded scripts")
}

func TestDescribeMigrations(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	infos := describeMigrations(
		[]migration{{Version: 1, Name: "orders"}, {Version: 2, Name: "idempotency_keys"}},
		map[int64]time.Time{1: at},
	)
	require.Equal(t, []MigrationInfo{
		{Version: 1, Name: "orders", Applied: true, AppliedAt: at},
		{Version: 2, Name: "idempotency_keys"},
	}, infos)
}

func TestMigrator_ClosedStore(t *testing.T) {
	t.Parallel()

	var store *Store
	ctx := t.Context()

	require.ErrorIs(t, store.MigrateUp(ctx, 0), errStoreClosed)
	require.ErrorIs(t, store.MigrateDown(ctx, 1), errStoreClosed)
	_, _, err := store.MigrationStatus(ctx)
	require.ErrorIs(t, err, errStoreClosed)
	_, err = store.Migrations(ctx)
	require.Error(t, err)
}
