package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	"github.com/codelynx/photolala/internal/photolala"
)

func TestS3Store_FullKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "photos/abc", want: "photos/abc"},
		{name: "prefix", prefix: "users/u-1", key: "photos/abc", want: "users/u-1/photos/abc"},
		{name: "prefix with trailing slash", prefix: "users/u-1/", key: "photos/abc", want: "users/u-1/photos/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3Store{prefix: tt.prefix}
			if got := s.fullKey(tt.key); got != tt.want {
				t.Errorf("fullKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{
			name:          "throttling is transient",
			err:           &smithy.GenericAPIError{Code: "SlowDown", Message: "slow down"},
			wantTransient: true,
		},
		{
			name:          "internal error is transient",
			err:           &smithy.GenericAPIError{Code: "InternalError", Message: "oops"},
			wantTransient: true,
		},
		{
			name:          "access denied is permanent",
			err:           &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"},
			wantTransient: false,
		},
		{
			name:          "connection failure is transient",
			err:           errors.New("dial tcp: connection refused"),
			wantTransient: true,
		},
		{
			name:          "context cancellation is not transient",
			err:           context.Canceled,
			wantTransient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := photolala.IsTransient(classify(tt.err))
			if got != tt.wantTransient {
				t.Errorf("IsTransient(classify(%v)) = %v, want %v", tt.err, got, tt.wantTransient)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&smithy.GenericAPIError{Code: "NotFound", Message: "404"}) {
		t.Error("isNotFound() = false for NotFound code")
	}
	if isNotFound(errors.New("something else")) {
		t.Error("isNotFound() = true for unrelated error")
	}
}
