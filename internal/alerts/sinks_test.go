package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane-labs/social-tracker/internal/models"
)

func TestWebhookSinkPostsPayloadToConfiguredURL(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(nil)
	rule := &models.AlertRule{ID: "r1", ChannelConfig: map[string]any{"url": srv.URL}}
	trig := &models.TriggeredAlert{RuleID: "r1", AccountID: "a1", Metric: "followers", FiredAt: time.Now()}

	err := sink.Dispatch(context.Background(), rule, trig)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Contains(t, string(gotBody), "a1")
}

func TestWebhookSinkErrorsWithoutConfiguredURL(t *testing.T) {
	sink := NewWebhookSink(nil)
	rule := &models.AlertRule{ID: "r1"}
	err := sink.Dispatch(context.Background(), rule, &models.TriggeredAlert{})
	require.Error(t, err)
}

func TestWebhookSinkErrorsOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(nil)
	rule := &models.AlertRule{ID: "r1", ChannelConfig: map[string]any{"url": srv.URL}}
	err := sink.Dispatch(context.Background(), rule, &models.TriggeredAlert{RuleID: "r1"})
	require.Error(t, err)
}

func TestEmailSinkErrorsWithoutConfiguredRecipient(t *testing.T) {
	sink := NewEmailSink("smtp.example.com:25", "alerts@example.com", nil)
	rule := &models.AlertRule{ID: "r1"}
	err := sink.Dispatch(context.Background(), rule, &models.TriggeredAlert{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channelConfig.to")
}
