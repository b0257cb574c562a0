package internal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignBodyIsDeterministicHMAC(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"hello":"world"}`)

	got := signBody(secret, body)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, got)
}

func TestWebhookNotifierDeliversSignedPayload(t *testing.T) {
	var gotSignature string
	var gotPayload WebhookPayload
	var received int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Alexandria-Signature")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		atomic.AddInt64(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, "topsecret")
	notifier.NotifyAsync(context.TODO(), WebhookPayload{
		EntityType:      "edition",
		Key:             "9780134685991",
		SourceProviders: []string{"bookapi"},
		FieldsAdded:     []string{"cover_url"},
	})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&received) == 1
	}, time.Second, 10*time.Millisecond)

	assert.NotEmpty(t, gotSignature)
	assert.Equal(t, "edition", gotPayload.EntityType)
	assert.Equal(t, "9780134685991", gotPayload.Key)
}

func TestWebhookNotifierNotifyAsyncNoopWhenUnconfigured(t *testing.T) {
	notifier := NewWebhookNotifier("", "")
	// Must not panic or block; there is nothing to assert on beyond return.
	notifier.NotifyAsync(context.TODO(), WebhookPayload{EntityType: "edition", Key: "x"})
}

func TestWebhookNotifierNilReceiverIsNoop(t *testing.T) {
	var notifier *WebhookNotifier
	notifier.NotifyAsync(context.TODO(), WebhookPayload{EntityType: "edition", Key: "x"})
}
