package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"crmcore/internal/blob/core"
)

// fakeS3 serves the subset of the S3 REST API the store uses, keyed by the
// path-style URL "/bucket/key".
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix")), nil
	}
	obj, ok := f.objects[key]
	switch req.Method {
	case http.MethodHead:
		if !ok {
			return respond(http.StatusNotFound, nil, ""), nil
		}
		return respond(http.StatusOK, objectHeaders(obj), ""), nil
	case http.MethodGet:
		if !ok {
			return respond(http.StatusNotFound, http.Header{"Content-Type": {"application/xml"}},
				`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`), nil
		}
		return respond(http.StatusOK, objectHeaders(obj), string(obj.body)), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		md := map[string]string{}
		for name, values := range req.Header {
			if strings.HasPrefix(strings.ToLower(name), "x-amz-meta-") {
				md[strings.TrimPrefix(strings.ToLower(name), "x-amz-meta-")] = values[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return respond(http.StatusOK, http.Header{"Etag": {`"etag-` + key + `"`}}, ""), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, nil, ""), nil
	}
	return respond(http.StatusMethodNotAllowed, nil, ""), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString(`</ListBucketResult>`)
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, b.String())
}

func objectHeaders(obj fakeObject) http.Header {
	h := http.Header{
		"Content-Length": {fmt.Sprint(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {`"abc"`},
		"Last-Modified":  {time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)},
	}
	for k, v := range obj.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func respond(status int, header http.Header, body string) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string]fakeObject{}}
	store, err := New(context.Background(), Config{
		Bucket:          "crm-reports",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	}, func(o *awsS3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		o.RetryMaxAttempts = 1
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, fake
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "reports/2024-01-01.txt", strings.NewReader("Report: 2 customers"), core.PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"kind": "weekly"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("Report: 2 customers")) || info.ContentType != "text/plain" {
		t.Fatalf("unexpected info %+v", info)
	}
	if string(fake.objects["reports/2024-01-01.txt"].body) != "Report: 2 customers" {
		t.Fatalf("unexpected stored body %q", fake.objects["reports/2024-01-01.txt"].body)
	}

	if _, err := store.Put(ctx, "reports/2024-01-01.txt", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, body, err := store.Get(ctx, "reports/2024-01-01.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "Report: 2 customers" || got.Metadata["kind"] != "weekly" {
		t.Fatalf("unexpected get %q %+v", data, got)
	}

	if _, err := store.Put(ctx, "reports/2024-01-08.txt", strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("second put: %v", err)
	}
	infos, err := store.List(ctx, "reports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "reports/2024-01-01.txt" {
		t.Fatalf("unexpected list %+v", infos)
	}

	existed, err := store.Delete(ctx, "reports/2024-01-01.txt")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, "reports/2024-01-01.txt")
	if err != nil || existed {
		t.Fatalf("second delete: existed=%v err=%v", existed, err)
	}
	if _, _, err := store.Get(ctx, "reports/2024-01-01.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
