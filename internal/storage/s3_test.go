package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *s3.Client {
	return s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  aws.NewCredentialsCache(staticCredentials{}),
		BaseEndpoint: aws.String("https://s3.test.local"),
		UsePathStyle: true,
	})
}

type staticCredentials struct{}

func (staticCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret", Source: "test"}, nil
}

func TestS3Service_ObjectURL(t *testing.T) {
	svc := NewS3Service(newTestClient(), "avatars-bucket")

	raw, err := svc.ObjectURL(context.Background(), "/avatars/u1/pic.png", 5*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "s3.test.local", u.Host)
	assert.Equal(t, "/avatars-bucket/avatars/u1/pic.png", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.True(t, strings.HasPrefix(u.Query().Get("X-Amz-Credential"), "AKIDTEST/"))
}

func TestS3Service_RequiresBucketAndKey(t *testing.T) {
	ctx := context.Background()
	unconfigured := NewS3Service(newTestClient(), "")

	assert.ErrorIs(t, unconfigured.PutObject(ctx, "k", strings.NewReader("x"), PutOptions{}), ErrNotConfigured)
	assert.ErrorIs(t, unconfigured.DeleteObject(ctx, "k"), ErrNotConfigured)
	_, err := unconfigured.ObjectURL(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotConfigured)

	svc := NewS3Service(newTestClient(), "b")
	assert.Error(t, svc.DeleteObject(ctx, " / "))
	_, err = svc.ObjectURL(ctx, "", time.Minute)
	assert.Error(t, err)
}
