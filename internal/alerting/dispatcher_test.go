package alerting_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/alerting"
	"github.com/MarkoPoloResearchLab/safecall/internal/metrics"
	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	"github.com/MarkoPoloResearchLab/safecall/internal/notifications"
	dbtestutil "github.com/MarkoPoloResearchLab/safecall/internal/testutil"
)

const (
	testOwnerEmail   = "doctor@hospital.example"
	testOtherEmail   = "other@hospital.example"
	testLatitude     = 12.971599
	testLongitude    = 77.594566
	testNotifyFailed = "delivery failed"
)

type recordingNotifier struct {
	mutex  sync.Mutex
	alerts []notifications.Alert
	err    error
}

func (notifier *recordingNotifier) NotifyContact(ctx context.Context, alert notifications.Alert) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.alerts = append(notifier.alerts, alert)
	return notifier.err
}

func (notifier *recordingNotifier) recorded() []notifications.Alert {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return append([]notifications.Alert(nil), notifier.alerts...)
}

// cancellingNotifier cancels the caller's context before each delivery.
type cancellingNotifier struct {
	cancel   context.CancelFunc
	delegate notifications.AlertNotifier
}

func (notifier *cancellingNotifier) NotifyContact(ctx context.Context, alert notifications.Alert) error {
	notifier.cancel()
	return notifier.delegate.NotifyContact(ctx, alert)
}

func createContactAt(testingT *testing.T, database *gorm.DB, profileID string, name string, createdAt time.Time) model.EmergencyContact {
	testingT.Helper()
	contact, err := model.NewEmergencyContact(model.EmergencyContactInput{
		ProfileID: profileID,
		Name:      name,
		Phone:     "+1 555 0100",
	})
	require.NoError(testingT, err)
	contact.CreatedAt = createdAt
	require.NoError(testingT, database.Create(&contact).Error)
	return contact
}

func TestDispatchAlertNotifiesEveryContactInOrder(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	owner := dbtestutil.CreateProfile(t, database, testOwnerEmail, model.RoleUser, model.StatusApproved)
	other := dbtestutil.CreateProfile(t, database, testOtherEmail, model.RoleUser, model.StatusApproved)

	baseTime := time.Now().Add(-time.Hour)
	createContactAt(t, database, owner.ID, "Second", baseTime.Add(time.Minute))
	createContactAt(t, database, owner.ID, "First", baseTime)
	createContactAt(t, database, other.ID, "Foreign", baseTime)

	notifier := &recordingNotifier{}
	recorder := metrics.NewRecorder()
	dispatcher := alerting.NewDispatcher(database, notifier, recorder, zap.NewNop())

	alertLog, err := dispatcher.DispatchAlert(context.Background(), owner.ID, testLatitude, testLongitude)
	require.NoError(t, err)
	require.Equal(t, 2, alertLog.ContactsNotified)

	var stored model.AlertLog
	require.NoError(t, database.First(&stored, "id = ?", alertLog.ID).Error)
	require.Equal(t, owner.ID, stored.ProfileID)
	require.InDelta(t, testLatitude, stored.Latitude, 1e-9)
	require.InDelta(t, testLongitude, stored.Longitude, 1e-9)
	require.Equal(t, 2, stored.ContactsNotified)

	alerts := notifier.recorded()
	require.Len(t, alerts, 2)
	require.Equal(t, "First", alerts[0].Contact.Name)
	require.Equal(t, "Second", alerts[1].Contact.Name)
	require.Equal(t, "https://www.google.com/maps?q=12.971599,77.594566", alerts[0].MapsLink())

	expected := `
# HELP safecall_contacts_notified_total Emergency contacts notified by SOS alerts.
# TYPE safecall_contacts_notified_total counter
safecall_contacts_notified_total 2
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "safecall_contacts_notified_total"))
}

func TestDispatchAlertWithoutContactsStillLogs(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	owner := dbtestutil.CreateProfile(t, database, testOwnerEmail, model.RoleUser, model.StatusApproved)

	notifier := &recordingNotifier{}
	dispatcher := alerting.NewDispatcher(database, notifier, nil, nil)

	alertLog, err := dispatcher.DispatchAlert(context.Background(), owner.ID, 0, 0)
	require.NoError(t, err)
	require.Zero(t, alertLog.ContactsNotified)
	require.Empty(t, notifier.recorded())

	var count int64
	require.NoError(t, database.Model(&model.AlertLog{}).Where("profile_id = ?", owner.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestDispatchAlertToleratesNotifierFailures(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	owner := dbtestutil.CreateProfile(t, database, testOwnerEmail, model.RoleUser, model.StatusApproved)
	dbtestutil.CreateContact(t, database, owner.ID, "Guard", "100", model.CategorySecurity)

	notifier := &recordingNotifier{err: errors.New(testNotifyFailed)}
	dispatcher := alerting.NewDispatcher(database, notifier, nil, zap.NewNop())

	alertLog, err := dispatcher.DispatchAlert(context.Background(), owner.ID, testLatitude, testLongitude)
	require.NoError(t, err)
	require.Equal(t, 1, alertLog.ContactsNotified)
	require.Len(t, notifier.recorded(), 1)
}

func TestDispatchAlertRejectsInvalidInput(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	dispatcher := alerting.NewDispatcher(database, &recordingNotifier{}, nil, nil)

	_, err := dispatcher.DispatchAlert(context.Background(), " ", testLatitude, testLongitude)
	require.ErrorIs(t, err, alerting.ErrMissingProfile)

	_, err = dispatcher.DispatchAlert(context.Background(), "profile", 95, testLongitude)
	require.ErrorIs(t, err, model.ErrInvalidAlertCoordinates)
}

func TestDispatchAlertReportsDatabaseErrors(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	recorder := metrics.NewRecorder()
	dispatcher := alerting.NewDispatcher(database, &recordingNotifier{}, recorder, nil)

	sqlDatabase, err := database.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDatabase.Close())

	_, err = dispatcher.DispatchAlert(context.Background(), "profile", testLatitude, testLongitude)
	require.Error(t, err)

	expected := `
# HELP safecall_alerts_dispatched_total SOS alerts processed, by outcome.
# TYPE safecall_alerts_dispatched_total counter
safecall_alerts_dispatched_total{outcome="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(recorder.Registry(), strings.NewReader(expected), "safecall_alerts_dispatched_total"))
}

func TestDispatchAlertDeliversAfterRequestCancellation(t *testing.T) {
	database := dbtestutil.NewMigratedDatabase(t)
	owner := dbtestutil.CreateProfile(t, database, testOwnerEmail, model.RoleUser, model.StatusApproved)
	dbtestutil.CreateContact(t, database, owner.ID, "Guard", "100", model.CategorySecurity)
	dbtestutil.CreateContact(t, database, owner.ID, "Mom", "+1 555 0101", model.CategoryFamily)

	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	requestContext, cancelRequest := context.WithCancel(context.Background())
	t.Cleanup(cancelRequest)
	notifier := &cancellingNotifier{cancel: cancelRequest, delegate: notifications.NewLogNotifier(logger)}
	dispatcher := alerting.NewDispatcher(database, notifier, nil, logger)

	alertLog, err := dispatcher.DispatchAlert(requestContext, owner.ID, testLatitude, testLongitude)
	require.NoError(t, err)
	require.Equal(t, 2, alertLog.ContactsNotified)
	require.ErrorIs(t, requestContext.Err(), context.Canceled)

	require.Len(t, logs.FilterMessage("alert_sent").All(), 2)
	require.Empty(t, logs.FilterMessage("notify_contact_failed").All())

	dispatched := logs.FilterMessage("dispatch_alert").All()
	require.Len(t, dispatched, 1)
	require.Equal(t, alertLog.MapsLink(), dispatched[0].ContextMap()["maps_link"])
}
