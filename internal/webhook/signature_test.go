package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

func signPayload(t *testing.T, secret, id, timestamp string, payload []byte) string {
	t.Helper()

	key, err := base64.StdEncoding.DecodeString(secret[len("whsec_"):])
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(payload)

	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestNewSvixVerifier(t *testing.T) {
	t.Run("accepts prefixed secret", func(t *testing.T) {
		_, err := NewSvixVerifier(testSecret)
		require.NoError(t, err)
	})

	t.Run("accepts bare base64 secret", func(t *testing.T) {
		_, err := NewSvixVerifier("MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw")
		require.NoError(t, err)
	})

	t.Run("rejects empty secret", func(t *testing.T) {
		_, err := NewSvixVerifier("")
		require.Error(t, err)
	})

	t.Run("rejects malformed secret", func(t *testing.T) {
		_, err := NewSvixVerifier("whsec_!!!not-base64!!!")
		require.Error(t, err)
	})
}

func TestSvixVerifier_Verify(t *testing.T) {
	now := time.Now()
	timestamp := strconv.FormatInt(now.Unix(), 10)
	payload := []byte(`{"type":"user.created","data":{}}`)

	newVerifier := func(t *testing.T) *SvixVerifier {
		t.Helper()
		v, err := NewSvixVerifier(testSecret)
		require.NoError(t, err)
		v.now = func() time.Time { return now }
		return v
	}

	t.Run("valid signature", func(t *testing.T) {
		v := newVerifier(t)

		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_1",
			Timestamp: timestamp,
			Signature: signPayload(t, testSecret, "msg_1", timestamp, payload),
		})
		require.NoError(t, err)
	})

	t.Run("matches any v1 entry among several", func(t *testing.T) {
		v := newVerifier(t)

		sig := signPayload(t, testSecret, "msg_1", timestamp, payload)
		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_1",
			Timestamp: timestamp,
			Signature: "v1,bm90LXRoaXMtb25l " + sig,
		})
		require.NoError(t, err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		v := newVerifier(t)

		err := v.Verify([]byte(`{"type":"user.deleted"}`), SignatureHeaders{
			ID:        "msg_1",
			Timestamp: timestamp,
			Signature: signPayload(t, testSecret, "msg_1", timestamp, payload),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("signature for a different message id", func(t *testing.T) {
		v := newVerifier(t)

		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_2",
			Timestamp: timestamp,
			Signature: signPayload(t, testSecret, "msg_1", timestamp, payload),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		v := newVerifier(t)

		err := v.Verify(payload, SignatureHeaders{ID: "msg_1", Timestamp: timestamp})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		v := newVerifier(t)

		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_1",
			Timestamp: "not-a-number",
			Signature: signPayload(t, testSecret, "msg_1", timestamp, payload),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		v := newVerifier(t)

		stale := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)
		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_1",
			Timestamp: stale,
			Signature: signPayload(t, testSecret, "msg_1", stale, payload),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("future timestamp", func(t *testing.T) {
		v := newVerifier(t)

		future := strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10)
		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_1",
			Timestamp: future,
			Signature: signPayload(t, testSecret, "msg_1", future, payload),
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unrecognised signature versions", func(t *testing.T) {
		v := newVerifier(t)

		err := v.Verify(payload, SignatureHeaders{
			ID:        "msg_1",
			Timestamp: timestamp,
			Signature: "v2,abc v1a,def",
		})
		require.ErrorIs(t, err, ErrInvalidSignature)
	})
}
