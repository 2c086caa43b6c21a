// Package capture issues presigned uploads for KYC evidence. The returned document
// URL is what a submission references.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"akwaba.app/internal/ids"
	"akwaba.app/internal/kyc"
)

var (
	ErrUnsupportedContentType = errors.New("capture: unsupported content type")
	ErrInvalidFileName        = errors.New("capture: invalid file name")
)

var allowedContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

// Presigner is the part of s3.PresignClient used here.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Upload tells the client where to PUT the file and what URL to submit afterwards.
type Upload struct {
	UploadURL   string            `json:"uploadUrl"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	DocumentURL string            `json:"documentUrl"`
	Key         string            `json:"key"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// Options configures the S3 uploader.
type Options struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
	TTL           time.Duration
}

// Uploads presigns PUT requests into one bucket.
type Uploads struct {
	presigner Presigner
	bucket    string
	base      string
	ttl       time.Duration
	now       func() time.Time
}

// NewS3 loads AWS configuration and returns an uploader. Endpoint and static keys
// are for S3-compatible stores such as MinIO or LocalStack.
func NewS3(ctx context.Context, opts Options) (*Uploads, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("capture: bucket is required")
	}
	loaders := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("capture: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	base := opts.PublicBaseURL
	if base == "" {
		switch {
		case opts.Endpoint != "":
			base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
		default:
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, cfg.Region)
		}
	}
	return New(s3.NewPresignClient(client), opts.Bucket, base, opts.TTL)
}

// New builds an uploader over any presigner.
func New(p Presigner, bucket, publicBaseURL string, ttl time.Duration) (*Uploads, error) {
	if p == nil {
		return nil, errors.New("capture: presigner is required")
	}
	u, err := url.Parse(strings.TrimRight(publicBaseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("capture: invalid public base url %q", publicBaseURL)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Uploads{presigner: p, bucket: bucket, base: u.String(), ttl: ttl, now: time.Now}, nil
}

// PresignUpload reserves an object key for one piece of evidence.
func (u *Uploads) PresignUpload(ctx context.Context, subjectID string, role kyc.Role, fileName, contentType string) (Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return Upload{}, fmt.Errorf("%w: %q", ErrUnsupportedContentType, contentType)
	}
	name := sanitizeFileName(fileName)
	if name == "" {
		return Upload{}, ErrInvalidFileName
	}
	if path.Ext(name) == "" {
		name += ext
	}
	key := fmt.Sprintf("kyc/%s/%s/%s-%s", strings.ToLower(string(role)), url.PathEscape(subjectID), ids.New(), name)

	req, err := u.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(u.ttl))
	if err != nil {
		return Upload{}, fmt.Errorf("capture: presign put object: %w", err)
	}

	headers := make(map[string]string, len(req.SignedHeader))
	for k, v := range req.SignedHeader {
		if len(v) > 0 && !strings.EqualFold(k, "host") {
			headers[k] = v[0]
		}
	}
	return Upload{
		UploadURL:   req.URL,
		Method:      req.Method,
		Headers:     headers,
		DocumentURL: u.base + "/" + key,
		Key:         key,
		ExpiresAt:   u.now().UTC().Add(u.ttl),
	}, nil
}

func sanitizeFileName(raw string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 80 {
		out = out[len(out)-80:]
	}
	return out
}
