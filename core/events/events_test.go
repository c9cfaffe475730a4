package events

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"darkgrid/core/models"
	"darkgrid/pubsub"
	"darkgrid/storage"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	return db
}

func TestRecordInsertsAndPublishes(t *testing.T) {
	db := testDB(t)
	broker := pubsub.NewBroker()
	recorder := NewRecorder(broker, nil)

	delivered, cancel := broker.Subscribe(Channel)
	defer cancel()

	subject := uuid.New()
	var event *models.Event
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = recorder.Record(tx, 7, "action.work", &subject, models.JSONMap{"reward": 100})
		return err
	}))
	require.Equal(t, uint32(7), event.Tick)

	var stored models.Event
	require.NoError(t, db.First(&stored, "id = ?", event.ID).Error)
	require.Equal(t, "action.work", stored.Kind)
	require.NotNil(t, stored.SubjectID)
	require.Equal(t, subject, *stored.SubjectID)

	msg := <-delivered
	require.Equal(t, "action.work", msg["kind"])
	require.Equal(t, subject.String(), msg["subject_id"])
}

type failingBroker struct{}

func (failingBroker) Publish(string, map[string]any) error {
	return errors.New("broker down")
}

func TestPublishFailureDoesNotFailRecord(t *testing.T) {
	db := testDB(t)
	recorder := NewRecorder(failingBroker{}, nil)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := recorder.Record(tx, 1, "tick.advance", nil, nil)
		return err
	}))

	var count int64
	require.NoError(t, db.Model(&models.Event{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestNilBrokerSkipsPublishing(t *testing.T) {
	db := testDB(t)
	recorder := NewRecorder(nil, nil)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := recorder.Record(tx, 1, "tick.advance", nil, nil)
		return err
	}))
}
