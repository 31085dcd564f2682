package audit

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/syncserver/internal/database"
	"github.com/mrlokans/syncserver/internal/entities"
)

func testService(t *testing.T) (*Service, *database.Database) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db), db
}

// waitForEvents polls for asynchronously written events.
func waitForEvents(t *testing.T, db *database.Database, want int) []entities.AuditEvent {
	t.Helper()
	var events []entities.AuditEvent
	require.Eventually(t, func() bool {
		var err error
		events, err = db.GetAuditEvents(0)
		return err == nil && len(events) >= want
	}, 2*time.Second, 10*time.Millisecond)
	return events
}

func TestLogLogin(t *testing.T) {
	service, db := testService(t)

	service.LogLogin("user-1", entities.LoginMethodPassword, "10.0.0.1", "curl/8", nil)
	service.LogLogin("", entities.LoginMethodOpenID, "10.0.0.2", "", errors.New("invalid openid state"))

	events := waitForEvents(t, db, 2)

	byAction := map[string]entities.AuditEvent{}
	for _, e := range events {
		byAction[e.Action] = e
	}

	ok := byAction["password_login"]
	assert.Equal(t, "user-1", ok.UserID)
	assert.Equal(t, entities.AuditEventAuth, ok.EventType)
	assert.Equal(t, entities.AuditStatusSuccess, ok.Status)
	assert.Equal(t, "10.0.0.1", ok.IPAddress)
	assert.Equal(t, "curl/8", ok.UserAgent)

	failed := byAction["openid_login"]
	assert.Equal(t, entities.AuditStatusFailed, failed.Status)
	assert.Equal(t, "invalid openid state", failed.ErrorMsg)
}

func TestLogBootstrapAndMethodSwitch(t *testing.T) {
	service, db := testService(t)

	service.LogBootstrap("10.0.0.1", nil)
	service.LogMethodSwitch("user-1", entities.LoginMethodOpenID, nil)

	events := waitForEvents(t, db, 2)

	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{"bootstrap", "enable_openid"}, actions)
}

func TestLogSecretWriteKeepsValueOut(t *testing.T) {
	service, db := testService(t)

	service.LogSecretWrite("user-1", "bank-token", nil)

	events := waitForEvents(t, db, 1)
	assert.Equal(t, "set_secret:bank-token", events[0].Action)
	assert.Equal(t, entities.AuditEventSecret, events[0].EventType)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcd", 2))
	assert.Equal(t, "", truncate("", 5))
}
