package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/HSouheill/barrim_mlm/models"
)

func TestMongoError(t *testing.T) {
	assert.NoError(t, mongoError("op", nil))
	assert.ErrorIs(t, mongoError("find", mongo.ErrNoDocuments), models.ErrNotFound)

	err := mongoError("find", context.Canceled)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.Canceled, "driver error stays reachable")

	transient := mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}
	err = mongoError("insert", transient)
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	var labeled mongo.LabeledError
	assert.True(t, errors.As(err, &labeled))
	assert.True(t, labeled.HasErrorLabel("TransientTransactionError"))

	other := errors.New("bad document")
	err = mongoError("insert", other)
	assert.ErrorIs(t, err, other)
	assert.Equal(t, models.KindInternal, models.KindOf(err))
}

func TestSQLError(t *testing.T) {
	assert.ErrorIs(t, sqlError("get", sql.ErrNoRows), models.ErrNotFound)
	assert.ErrorIs(t, sqlError("get", context.DeadlineExceeded), models.ErrStorageUnavailable)
	assert.ErrorIs(t, sqlError("get", sql.ErrConnDone), models.ErrStorageUnavailable)
	assert.Equal(t, models.KindInternal, models.KindOf(sqlError("get", errors.New("syntax error"))))
}
