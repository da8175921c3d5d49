// README: Push notification of new assignments to the driver's device via FCM.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type DriverLookup interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type FCMNotifier struct {
	sender  Sender
	drivers DriverLookup
	log     *logrus.Entry
}

func NewFCMNotifier(sender Sender, drivers DriverLookup, log *logrus.Entry) *FCMNotifier {
	return &FCMNotifier{sender: sender, drivers: drivers, log: logging.Component(log, "fcm")}
}

// TripAssigned sends a data message carrying the trip id and the offer
// deadline. Drivers without a registered device are skipped.
func (n *FCMNotifier) TripAssigned(ctx context.Context, t *trip.Trip) error {
	if t.DriverID == nil {
		return nil
	}
	d, err := n.drivers.Get(ctx, *t.DriverID)
	if err != nil {
		return fmt.Errorf("lookup driver %s: %w", *t.DriverID, err)
	}
	if d.DeviceToken == "" {
		n.log.WithField("driver_id", d.ID).Debug("no device token, push skipped")
		return nil
	}

	id, err := n.sender.Send(ctx, assignmentMessage(d.DeviceToken, t))
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	n.log.WithFields(logrus.Fields{"trip_id": t.ID, "driver_id": d.ID, "message_id": id}).Debug("assignment pushed")
	return nil
}

func assignmentMessage(token string, t *trip.Trip) *messaging.Message {
	data := map[string]string{
		"type":           "trip_assigned",
		"trip_id":        string(t.ID),
		"pickup":         t.Pickup.Address,
		"dropoff":        t.Dropoff.Address,
		"estimated_fare": strconv.FormatFloat(t.EstimatedFare, 'f', 2, 64),
	}
	if t.AssignmentExpiry != nil {
		data["expires_at"] = t.AssignmentExpiry.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if t.DriverETAMinutes != nil {
		data["pickup_eta_min"] = strconv.Itoa(*t.DriverETAMinutes)
	}
	return &messaging.Message{
		Token: token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: "New trip",
			Body:  t.Pickup.Address,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}
}
