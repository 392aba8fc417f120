package notifynats

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs     []published
	flushes  int
	flushErr error
	closed   bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) FlushTimeout(time.Duration) error {
	f.flushes++
	return f.flushErr
}

func (f *fakeConn) Close() { f.closed = true }

func TestWriterPublishesPerChannel(t *testing.T) {
	conn := &fakeConn{}
	w := newWriter(conn, "ops.alerts.", time.Second)

	require.NoError(t, w.WriteNotifications([]*models.Notification{
		{ID: "1", IncidentID: "inc-1", Channel: "slack", Severity: models.SeverityCritical},
		nil,
		{ID: "2", IncidentID: "inc-1", Channel: "pager.duty"},
	}))

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "ops.alerts.slack", conn.msgs[0].subject)
	assert.Equal(t, "ops.alerts.pager_duty", conn.msgs[1].subject)
	assert.Equal(t, 1, conn.flushes)

	var n models.Notification
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &n))
	assert.Equal(t, "inc-1", n.IncidentID)
	assert.Equal(t, models.SeverityCritical, n.Severity)

	require.NoError(t, w.Close())
	assert.True(t, conn.closed)
}

func TestWriterEmptyBatchSkipsFlush(t *testing.T) {
	conn := &fakeConn{}
	w := newWriter(conn, "", time.Second)
	require.NoError(t, w.WriteNotifications(nil))
	assert.Zero(t, conn.flushes)
	assert.Equal(t, "autoremedy.notifications.email", w.Subject("email"))
}

func TestWriterFlushError(t *testing.T) {
	conn := &fakeConn{flushErr: errors.New("timeout")}
	w := newWriter(conn, "", time.Second)
	err := w.WriteNotifications([]*models.Notification{{ID: "1", Channel: "sms"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush nats")
}
