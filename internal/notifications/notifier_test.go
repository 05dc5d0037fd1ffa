package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	testProfileID    = "profile-id"
	testContactID    = "contact-id"
	testContactName  = "Night Desk"
	testContactPhone = "+91 98765 43210"
	testAlertMessage = "ALERT SENT to Night Desk (+91 98765 43210): Emergency at https://www.google.com/maps?q=12.9716,77.5946"
)

func testAlert() Alert {
	return Alert{
		ProfileID: testProfileID,
		Contact: model.EmergencyContact{
			ID:       testContactID,
			Name:     testContactName,
			Phone:    testContactPhone,
			Category: model.CategorySecurity,
		},
		Latitude:  12.9716,
		Longitude: 77.5946,
	}
}

func TestAlertMessage(t *testing.T) {
	require.Equal(t, testAlertMessage, testAlert().Message())
}

func TestLogNotifierWritesAlertLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	require.NoError(t, notifier.NotifyContact(context.Background(), testAlert()))

	entries := logs.FilterMessage(logEventAlertSent).All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, testAlertMessage, fields[logFieldMessage])
	require.Equal(t, testProfileID, fields[logFieldProfileID])
	require.Equal(t, testContactID, fields[logFieldContactID])
	require.Equal(t, string(model.CategorySecurity), fields[logFieldCategory])
}

func TestLogNotifierRejectsInvalidAlerts(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	missingPhone := testAlert()
	missingPhone.Contact.Phone = " "
	require.ErrorIs(t, notifier.NotifyContact(context.Background(), missingPhone), ErrMissingRecipient)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, notifier.NotifyContact(cancelledContext, testAlert()), context.Canceled)

	require.Zero(t, logs.Len())
}

func TestNilLogNotifier(t *testing.T) {
	var notifier *LogNotifier
	require.ErrorIs(t, notifier.NotifyContact(context.Background(), testAlert()), ErrNotifierClosed)

	require.NoError(t, NewLogNotifier(nil).NotifyContact(context.Background(), testAlert()))
}
