package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/eventure/backend/internal/models"
)

func TestSweeperService_SweepExpiredIntents(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSweeperService(db)

	t.Run("deletes stale pending intents and their registrations", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM payment_intents WHERE status = \\$1 AND created_at < \\$2").
			WithArgs(models.IntentStatusPending, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).
				AddRow("intent1").
				AddRow("intent2"))

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM registrations WHERE transaction_id = ANY\\(\\$1\\) AND status = \\$2").
			WithArgs(pq.Array([]string{"intent1", "intent2"}), models.RegistrationStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM payment_intents WHERE id = ANY\\(\\$1\\) AND status = \\$2").
			WithArgs(pq.Array([]string{"intent1", "intent2"}), models.IntentStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		service.SweepExpiredIntents(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does nothing when no intent has expired", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM payment_intents WHERE status = \\$1 AND created_at < \\$2").
			WithArgs(models.IntentStatusPending, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		service.SweepExpiredIntents(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a select failure skips the cycle", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM payment_intents WHERE status = \\$1 AND created_at < \\$2").
			WithArgs(models.IntentStatusPending, sqlmock.AnyArg()).
			WillReturnError(assert.AnError)

		service.SweepExpiredIntents(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
