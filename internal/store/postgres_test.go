package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ownership-cli/internal/config"
	"github.com/sells-group/ownership-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return newPostgresStore(mock), mock
}

func expectUpsert(m pgxmock.PgxPoolIface, table string, cols []string, n int64) {
	stage := fmt.Sprintf("_stage_%s", strings.ReplaceAll(table, ".", "_"))
	m.ExpectBegin()
	m.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	m.ExpectCopyFrom(pgx.Identifier{stage}, cols).WillReturnResult(n)
	m.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", n))
	m.ExpectCommit()
}

func TestPostgresStore_WritePanel(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectUpsert(mock, "ownership.panel", panelColumns, 2)

	n, err := s.WritePanel(context.Background(), uuid.New(), Span{}, []model.PanelRow{
		{CompanyID: "C1", InstitutionID: "I1", Quarter: 202003, Ratio: 0.1, Origin: model.OriginFiling},
		{CompanyID: "C1", InstitutionID: "I2", Quarter: 202003, Ratio: 0.2, Origin: model.OriginFund},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteSecurityPanel(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	expectUpsert(mock, "ownership.security_panel", securityPanelColumns, 1)

	n, err := s.WriteSecurityPanel(context.Background(), uuid.New(), Span{}, []model.Position{
		{SecurityID: "S1", HolderID: "H1", Quarter: 202003, Value: 100, Source: model.SourceFiling, Scheme: model.SchemeFilerDomestic},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WritePanelEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	n, err := s.WritePanel(context.Background(), uuid.New(), Span{}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WritePanelReplacesSpan(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ownership"."panel" WHERE quarter BETWEEN \$1 AND \$2`).
		WithArgs(int32(202003), int32(202012)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_ownership_panel"}, panelColumns).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.WritePanel(context.Background(), uuid.New(), Span{From: 202003, To: 202012}, []model.PanelRow{
		{CompanyID: "C1", InstitutionID: "I1", Quarter: 202003, Ratio: 0.9, Origin: model.OriginFiling},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteSecurityPanelEmptyClearsSpan(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "ownership"."security_panel"`).
		WithArgs(int32(202003), int32(202003)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	n, err := s.WriteSecurityPanel(context.Background(), uuid.New(), Span{From: 202003, To: 202003}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Panel(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mv := 12.5

	mock.ExpectQuery(`FROM ownership.panel WHERE quarter >= \$1 AND company_id = \$2 ORDER BY company_id, institution_id, quarter LIMIT \$3`).
		WithArgs(int32(202003), "C1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "institution_id", "quarter", "ratio", "scheme", "market_value", "origin"}).
			AddRow("C1", "I1", int32(202003), 0.125, int16(1), &mv, "filing").
			AddRow("C1", "I2", int32(202006), 0.05, int16(0), (*float64)(nil), "both"))

	rows, err := s.Panel(context.Background(), Filter{From: 202003, CompanyID: "C1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, model.SchemeFilerDomestic, rows[0].Scheme)
	assert.Equal(t, 12.5, *rows[0].MarketValue)
	assert.Nil(t, rows[1].MarketValue)
	assert.Equal(t, model.OriginBoth, rows[1].Origin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PanelQueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM ownership.panel`).WillReturnError(fmt.Errorf("relation does not exist"))

	_, err := s.Panel(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: query panel")
}

func TestPgWhere(t *testing.T) {
	where, args := pgWhere(Filter{}, "company_id")
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args = pgWhere(Filter{From: 202003, To: 202312}, "security_id")
	assert.Equal(t, " WHERE quarter >= $1 AND quarter <= $2", where)
	assert.Equal(t, []any{int32(202003), int32(202312)}, args)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", SQLitePath: t.TempDir() + "/o.db"})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)
}
