package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want Kind
	}{
		{404, KindNotFound},
		{410, KindNotFound},
		{429, KindRateLimited},
		{408, KindTimeout},
		{504, KindTimeout},
		{500, KindUnavailable},
		{503, KindUnavailable},
		{400, KindInvalid},
		{401, KindInvalid},
		{422, KindInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindForStatus(tt.code), tt.code)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"status wrapped", eris.Wrap(&statusErr{code: 429}, "places search"), KindRateLimited},
		{"status not found", &statusErr{code: 404}, KindNotFound},
		{"deadline", eris.Wrap(context.DeadlineExceeded, "call"), KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("dial tcp: refused")}, KindUnavailable},
		{"conn refused", syscall.ECONNREFUSED, KindUnavailable},
		{"conn reset text", errors.New("read: connection reset by peer"), KindUnavailable},
		{"bad json", errors.New("unexpected character in response"), KindInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Classify("places", tt.err)
			var ae *AdapterError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.want, ae.Kind)
			assert.Equal(t, "places", ae.Service)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_KeepsExisting(t *testing.T) {
	t.Parallel()

	orig := NewAdapterError("pexels", KindNotFound, nil)
	got := Classify("places", eris.Wrap(orig, "wrapped"))

	var ae *AdapterError
	require.ErrorAs(t, got, &ae)
	assert.Same(t, orig, ae)
	assert.Nil(t, Classify("places", nil))
}

func TestClassify_RecordsStatusCode(t *testing.T) {
	t.Parallel()

	var ae *AdapterError
	require.ErrorAs(t, Classify("firecrawl", &statusErr{code: 502}), &ae)
	assert.Equal(t, 502, ae.StatusCode)
	assert.Equal(t, KindUnavailable, ae.Kind)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(NewAdapterError("s", KindNotFound, nil)))
	assert.False(t, IsRetryable(NewAdapterError("s", KindInvalid, nil)))
	assert.True(t, IsRetryable(NewAdapterError("s", KindRateLimited, nil)))
	assert.True(t, IsRetryable(NewAdapterError("s", KindTimeout, nil)))
	assert.True(t, IsRetryable(eris.Wrap(NewAdapterError("s", KindUnavailable, nil), "step")))
}

func TestAdapterError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "places: not_found", NewAdapterError("places", KindNotFound, nil).Error())
	assert.Equal(t, "places: timeout: slow", NewAdapterError("places", KindTimeout, errors.New("slow")).Error())
}
