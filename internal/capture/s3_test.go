package capture

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"akwaba.app/internal/kyc"
)

type fakePresigner struct {
	input *s3.PutObjectInput
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = in
	return &v4.PresignedHTTPRequest{
		URL:          "https://bucket.example/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc",
		Method:       http.MethodPut,
		SignedHeader: http.Header{"Host": {"bucket.example"}, "Content-Type": {aws.ToString(in.ContentType)}},
	}, nil
}

func TestPresignUpload(t *testing.T) {
	fp := &fakePresigner{}
	up, err := New(fp, "kyc-docs", "https://cdn.example/kyc-docs/", 5*time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := up.PresignUpload(context.Background(), "user 1", kyc.RoleAgency, "../../My RCCM", "application/pdf")
	if err != nil {
		t.Fatalf("PresignUpload: %v", err)
	}
	if !strings.HasPrefix(got.Key, "kyc/agency/user%201/") || !strings.HasSuffix(got.Key, "-My_RCCM.pdf") {
		t.Fatalf("unexpected key %q", got.Key)
	}
	if got.DocumentURL != "https://cdn.example/kyc-docs/"+got.Key {
		t.Fatalf("unexpected document url %q", got.DocumentURL)
	}
	if got.Method != http.MethodPut || got.Headers["Content-Type"] != "application/pdf" {
		t.Fatalf("unexpected upload %+v", got)
	}
	if _, ok := got.Headers["Host"]; ok {
		t.Fatal("host header must not be echoed")
	}
	if aws.ToString(fp.input.Bucket) != "kyc-docs" {
		t.Fatalf("unexpected bucket %q", aws.ToString(fp.input.Bucket))
	}
	if err := (kyc.MustPolicyFor(kyc.RoleAgency)).Validate(true, kyc.DocRCCM, "CI-AB1", got.DocumentURL); err != nil {
		t.Fatalf("document url must be submittable: %v", err)
	}
}

func TestPresignUploadRejectsInput(t *testing.T) {
	up, err := New(&fakePresigner{}, "b", "https://cdn.example", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := up.PresignUpload(context.Background(), "u", kyc.RoleGuest, "a.exe", "application/x-msdownload"); !errors.Is(err, ErrUnsupportedContentType) {
		t.Fatalf("expected ErrUnsupportedContentType, got %v", err)
	}
	if _, err := up.PresignUpload(context.Background(), "u", kyc.RoleGuest, "///", "image/png"); !errors.Is(err, ErrInvalidFileName) {
		t.Fatalf("expected ErrInvalidFileName, got %v", err)
	}
}

func TestNewRejectsBadBase(t *testing.T) {
	if _, err := New(&fakePresigner{}, "b", "ftp://x", 0); err == nil {
		t.Fatal("expected error for non-http base")
	}
}
