package pipeline

import (
	"errors"

	"autoremedy/pkg/models"
)

// NotificationWriter delivers queued notification records.
type NotificationWriter interface {
	WriteNotifications(notes []*models.Notification) error
	Close() error
}

// MultiNotificationWriter hands every batch to each sink. A failing sink does not
// stop the others.
type MultiNotificationWriter []NotificationWriter

// WriteNotifications implements NotificationWriter.
func (m MultiNotificationWriter) WriteNotifications(notes []*models.Notification) error {
	var errs []error
	for _, w := range m {
		if err := w.WriteNotifications(notes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements NotificationWriter.
func (m MultiNotificationWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
