package s3compat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/stowgate/stowgate/pkg/provider"
)

// Adapter implements provider.Adapter for S3-compatible storage.
type Adapter struct {
	client  *s3.Client
	presign *s3.PresignClient
	cfg     Config
	timeout time.Duration
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an S3-compatible adapter. Required configuration is
// validated before any network call.
func New(ctx context.Context, cfg Config, timeout time.Duration) (*Adapter, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &provider.AdapterError{
			Op:           "New",
			Kind:         provider.KindS3Compatible,
			ConnectionID: cfg.ConnectionID,
			Err:          err,
		}
	}
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultRegion
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) { o.UsePathStyle = cfg.ForcePathStyle },
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	if timeout <= 0 {
		timeout = provider.DefaultTimeout
	}

	return &Adapter{
		client:  client,
		presign: s3.NewPresignClient(client),
		cfg:     cfg,
		timeout: timeout,
	}, nil
}

// validate checks required fields up front, before any I/O.
func validate(cfg Config) error {
	switch {
	case cfg.Bucket == "":
		return &provider.ConfigError{Kind: provider.KindS3Compatible, Field: "Bucket", Message: "bucket name is required"}
	case cfg.AccessKeyID == "":
		return &provider.ConfigError{Kind: provider.KindS3Compatible, Field: "AccessKeyID", Message: "access key is required"}
	case cfg.SecretAccessKey == "":
		return &provider.ConfigError{Kind: provider.KindS3Compatible, Field: "SecretAccessKey", Message: "secret key is required"}
	}
	return nil
}

// Kind implements provider.Adapter.
func (a *Adapter) Kind() provider.Kind {
	return provider.KindS3Compatible
}

// TestConnection probes the bucket with HeadBucket: the cheapest call
// that proves both the credentials and the bucket are good.
func (a *Adapter) TestConnection(ctx context.Context) *provider.TestResult {
	ctx, cancel := provider.BoundContext(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.cfg.Bucket)})
	latency := time.Since(start)

	if err != nil {
		mapped := a.wrapError("TestConnection", "", err)
		return &provider.TestResult{
			Success:   false,
			Message:   testFailureMessage(mapped, a.cfg.Bucket),
			ErrorCode: provider.ErrorCode(mapped),
			Latency:   latency,
		}
	}

	return &provider.TestResult{
		Success: true,
		Message: fmt.Sprintf("bucket %q reachable", a.cfg.Bucket),
		Latency: latency,
	}
}

// testFailureMessage renders a typed failure as a human-readable probe
// message.
func testFailureMessage(err error, bucket string) string {
	switch {
	case errors.Is(err, provider.ErrContainerNotFound):
		return fmt.Sprintf("bucket %q does not exist", bucket)
	case errors.Is(err, provider.ErrInvalidCredentials):
		return "credentials rejected by the endpoint"
	case errors.Is(err, provider.ErrAccessDenied):
		return fmt.Sprintf("access denied to bucket %q", bucket)
	case errors.Is(err, provider.ErrNetworkTimeout):
		return "endpoint did not respond within the timeout"
	case errors.Is(err, provider.ErrProviderUnavailable):
		return "endpoint unavailable"
	default:
		return err.Error()
	}
}

// List returns one page of objects via ListObjectsV2. The continuation
// token is passed through opaquely; tokens S3 rejects surface as
// ErrInvalidPageToken.
func (a *Adapter) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if opts.PageToken != "" && !plausibleToken(opts.PageToken) {
		return nil, a.wrapError("List", "", provider.ErrInvalidPageToken)
	}

	pageSize := opts.MaxResults
	if pageSize <= 0 {
		pageSize = a.cfg.MaxResults
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.cfg.Bucket),
		MaxKeys: aws.Int32(int32(pageSize)),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.PageToken != "" {
		input.ContinuationToken = aws.String(opts.PageToken)
	}

	var output *s3.ListObjectsV2Output
	err := provider.RetryOnce(ctx, func(ctx context.Context) error {
		ctx, cancel := provider.BoundContext(ctx, a.timeout)
		defer cancel()
		var callErr error
		output, callErr = a.client.ListObjectsV2(ctx, input)
		if callErr != nil {
			return a.wrapError("List", "", callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	visibility := provider.VisibilityPrivate
	if a.cfg.PublicRead {
		visibility = provider.VisibilityPublic
	}

	files := make([]provider.RemoteFile, 0, len(output.Contents))
	for _, obj := range output.Contents {
		files = append(files, provider.RemoteFile{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			Visibility:   visibility,
			ConnectionID: a.cfg.ConnectionID,
		})
	}

	result := &provider.ListResult{Files: files}
	if aws.ToBool(output.IsTruncated) {
		result.NextPageToken = aws.ToString(output.NextContinuationToken)
	}
	return result, nil
}

// Grant issues an access URL for one object. Public buckets yield the
// direct object URL with no expiry; private buckets yield a presigned
// GET bounded by ttl. The object must exist.
func (a *Adapter) Grant(ctx context.Context, key string, ttl time.Duration) (*provider.AccessGrant, error) {
	err := provider.RetryOnce(ctx, func(ctx context.Context) error {
		ctx, cancel := provider.BoundContext(ctx, a.timeout)
		defer cancel()
		_, callErr := a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(key),
		})
		if callErr != nil {
			return a.wrapError("Grant", key, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if a.cfg.PublicRead {
		return &provider.AccessGrant{
			URL:          a.objectURL(key),
			ConnectionID: a.cfg.ConnectionID,
			Key:          key,
		}, nil
	}

	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	signCtx, cancel := provider.BoundContext(ctx, a.timeout)
	defer cancel()
	signed, err := a.presign.PresignGetObject(signCtx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, a.wrapError("Grant", key, err)
	}

	return &provider.AccessGrant{
		URL:          signed.URL,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		ExpiresAt:    time.Now().Add(ttl),
	}, nil
}

// Close implements provider.Adapter. The S3 client holds no resources
// that need explicit cleanup.
func (a *Adapter) Close() error {
	return nil
}

// objectURL builds the direct URL for a public object.
func (a *Adapter) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	escaped = strings.TrimPrefix(escaped, "/")

	if a.cfg.Endpoint != "" {
		base := strings.TrimSuffix(a.cfg.Endpoint, "/")
		if a.cfg.ForcePathStyle {
			return fmt.Sprintf("%s/%s/%s", base, a.cfg.Bucket, escaped)
		}
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, a.cfg.Bucket, u.Host, escaped)
		}
		return fmt.Sprintf("%s/%s/%s", base, a.cfg.Bucket, escaped)
	}

	region := a.cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.cfg.Bucket, region, escaped)
}

// plausibleToken rejects continuation tokens that cannot possibly have
// come from S3 before spending a network call on them.
func plausibleToken(token string) bool {
	_, err := base64.StdEncoding.DecodeString(token)
	return err == nil
}

// wrapError converts SDK errors to the adapter error taxonomy.
func (a *Adapter) wrapError(op, key string, err error) error {
	wrapped := &provider.AdapterError{
		Op:           op,
		Kind:         provider.KindS3Compatible,
		ConnectionID: a.cfg.ConnectionID,
		Key:          key,
		Err:          err,
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		wrapped.Err = provider.ErrObjectNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrContainerNotFound
		return wrapped
	case errors.Is(err, context.DeadlineExceeded):
		wrapped.Err = provider.ErrNetworkTimeout
		return wrapped
	case errors.Is(err, provider.ErrInvalidPageToken):
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = provider.ErrObjectNotFound
		case "NoSuchBucket":
			wrapped.Err = provider.ErrContainerNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = provider.ErrInvalidCredentials
		case "InvalidArgument", "InvalidToken":
			wrapped.Err = provider.ErrInvalidPageToken
		case "SlowDown", "Throttling", "RequestLimitExceeded", "ServiceUnavailable", "InternalError":
			wrapped.Err = provider.ErrProviderUnavailable
		case "RequestTimeout":
			wrapped.Err = provider.ErrNetworkTimeout
		}
		return wrapped
	}

	// Fallback for S3-compatible stores with nonstandard error shapes.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchKey"), strings.Contains(msg, "404"):
		wrapped.Err = provider.ErrObjectNotFound
	case strings.Contains(msg, "NoSuchBucket"):
		wrapped.Err = provider.ErrContainerNotFound
	case strings.Contains(msg, "AccessDenied"), strings.Contains(msg, "403"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(msg, "InvalidAccessKeyId"), strings.Contains(msg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		wrapped.Err = provider.ErrNetworkTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "503"):
		wrapped.Err = provider.ErrProviderUnavailable
	}
	return wrapped
}
