package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	for range Schema {
		mock.ExpectExec(regexp.QuoteMeta("CREATE")).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	d := &Database{Conn: conn}
	require.NoError(t, d.AutoMigrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMigrate_StopsOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))

	d := &Database{Conn: conn}
	err = d.AutoMigrate(context.Background())
	assert.ErrorContains(t, err, "migration failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsPattern(t *testing.T) {
	for in, want := range map[string]string{
		"cat":      "%cat%",
		"":         "%%",
		"50%":      `%50\%%`,
		"og_name":  `%og\_name%`,
		`back\sla`: `%back\\sla%`,
	} {
		assert.Equal(t, want, ContainsPattern(in), in)
	}
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("6f1c2b7e-3d4a-4b5c-9e8f-0a1b2c3d4e5f"))
	for _, id := range []string{"", "u-alice", "not-a-uuid", "6f1c2b7e3d4a4b5c9e8f0a1b2c3d4e5f", "urn:uuid:6f1c2b7e-3d4a-4b5c-9e8f-0a1b2c3d4e5f"} {
		assert.False(t, ValidID(id), id)
	}
}
