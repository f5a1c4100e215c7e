package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"panel", `"panel"`},
		{"ownership.run_log", `"ownership"."run_log"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Identifier(tt.input).Sanitize())
		})
	}
}

func TestCopyRows_Empty(t *testing.T) {
	n, err := CopyRows(context.TODO(), nil, "ownership.panel", []string{"a"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"ownership", "security_panel"}, []string{"security_id", "holder_id"}).WillReturnResult(2)

	n, err := CopyRows(context.Background(), mock, "ownership.security_panel",
		[]string{"security_id", "holder_id"}, [][]any{{"S1", "H1"}, {"S2", "H1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"panel"}, []string{"a"}).WillReturnError(errors.New("copy failed"))

	_, err = CopyRows(context.Background(), mock, "panel", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: copy into panel")
}

func TestConnect_EmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), "", 0)
	assert.Error(t, err)
}
