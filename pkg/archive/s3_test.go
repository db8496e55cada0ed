package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/tenantguard/pkg/config"
)

func TestAuditKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 4, 5, 6, 0, time.FixedZone("EST", -5*3600))
	org := int64(42)

	assert.Equal(t, "audit/org-42/2026/03/09/20260309T090506Z.jsonl", AuditKey(&org, at))
	assert.Equal(t, "audit/all/2026/03/09/20260309T090506Z.jsonl", AuditKey(nil, at))
}

func TestKey(t *testing.T) {
	s := &S3Store{prefix: "tenantguard"}
	assert.Equal(t, "tenantguard/audit/all/x.jsonl", s.Key("audit/all", "x.jsonl"))

	s = &S3Store{}
	assert.Equal(t, "audit/x.jsonl", s.Key("audit", "x.jsonl"))
}

func TestIsBucketExists(t *testing.T) {
	assert.True(t, isBucketExists(&types.BucketAlreadyOwnedByYou{}))
	assert.True(t, isBucketExists(fmt.Errorf("create: %w", &types.BucketAlreadyExists{})))
	assert.False(t, isBucketExists(errors.New("access denied")))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), config.ArchiveConfig{})
	assert.EqualError(t, err, "archive bucket is not configured")
}
