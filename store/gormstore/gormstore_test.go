package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bitbucket.org/mmdatafocus/ops_backend/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	return New(gdb), mock
}

// expectLockedBegin expects the collection_locks rows to be ensured (first use
// only) and then locked right after BEGIN.
func expectLockedBegin(mock sqlmock.Sqlmock, ensure bool, collection string) {
	if ensure {
		mock.ExpectExec("INSERT IGNORE INTO collection_locks \\(collection\\) VALUES \\(\\?\\)").
			WithArgs(collection).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT collection FROM collection_locks WHERE collection IN \\(\\?\\) ORDER BY collection FOR UPDATE").
		WithArgs(collection).
		WillReturnRows(sqlmock.NewRows([]string{"collection"}).AddRow(collection))
}

func docRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"collection", "id", "body", "updated_at"})
}

type order struct {
	Id     string  `json:"id"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
}

func TestGetDecodesBody(t *testing.T) {
	s, mock := newMockStore(t)
	expectLockedBegin(mock, true, "orders")
	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE collection = \\? AND id = \\?").
		WillReturnRows(docRows().AddRow("orders", "O1", `{"id":"O1","status":"pending","total":12.5}`, time.Now()))
	mock.ExpectCommit()

	var got *order
	err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		var err error
		got, err = store.Get[order](tx, "orders", "O1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, &order{Id: "O1", Status: "pending", Total: 12.5}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	expectLockedBegin(mock, true, "orders")
	mock.ExpectQuery("SELECT \\* FROM `documents`").WillReturnRows(docRows())
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		var o order
		return tx.Get("orders", "nope", &o)
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddDuplicateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	expectLockedBegin(mock, true, "orders")
	mock.ExpectExec("INSERT INTO `documents`").WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		return tx.Add("orders", "O1", order{Id: "O1"})
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryPushesDownEqualityAndRechecksInGo(t *testing.T) {
	s, mock := newMockStore(t)
	expectLockedBegin(mock, true, "orders")
	mock.ExpectQuery("SELECT \\* FROM `documents` WHERE collection = \\? AND JSON_UNQUOTE\\(JSON_EXTRACT\\(body, \\?\\)\\) = \\? ORDER BY id").
		WithArgs("orders", "$.status", "pending").
		WillReturnRows(docRows().
			AddRow("orders", "O1", `{"id":"O1","status":"pending","total":5}`, time.Now()).
			AddRow("orders", "O2", `{"id":"O2","status":"pending","total":50}`, time.Now()))
	mock.ExpectCommit()

	var got []order
	err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		var err error
		got, err = store.Query[order](tx, "orders", store.Eq("status", "pending"), store.Gte("total", 10))
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "O2", got[0].Id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeAndFieldChecksNeverReachTheDatabase(t *testing.T) {
	s, mock := newMockStore(t)
	expectLockedBegin(mock, true, "orders")
	mock.ExpectRollback()
	err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		return tx.Put("invoices", "I1", order{})
	})
	assert.ErrorIs(t, err, store.ErrUndeclaredCollection)

	expectLockedBegin(mock, false, "orders")
	mock.ExpectRollback()
	err = s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		_, err := tx.Query("orders", store.Eq("status') OR 1=1 --", "x"))
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid predicate field")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadWriteLocksDeclaredCollectionsInNameOrder(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT IGNORE INTO collection_locks \\(collection\\) VALUES \\(\\?\\), \\(\\?\\)").
		WithArgs("executiveAlerts", "orders").
		WillReturnResult(sqlmock.NewResult(0, 2))
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT collection FROM collection_locks WHERE collection IN \\(.+\\) ORDER BY collection FOR UPDATE").
			WithArgs("executiveAlerts", "orders").
			WillReturnRows(sqlmock.NewRows([]string{"collection"}).AddRow("executiveAlerts").AddRow("orders"))
		mock.ExpectCommit()
	}

	for i := 0; i < 2; i++ {
		err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders", "executiveAlerts", "orders"}, func(tx store.Tx) error {
			return nil
		})
		require.NoError(t, err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockFailureAbortsTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT IGNORE INTO collection_locks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT collection FROM collection_locks").
		WillReturnError(&mysqlDriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	called := false
	err := s.Transaction(context.Background(), store.ReadWrite, []string{"orders"}, func(tx store.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock collections")
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}
