package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"keyledger/internal/blob/core"
)

// NewMockForTests returns a Store backed by an in-memory fake HTTP transport.
// Only the S3 operations the blob Store surface needs are implemented.
func NewMockForTests() *Store {
	store, _ := newMock(1000)
	return store
}

func newMock(pageSize int) (*Store, *mockRoundTripper) {
	rt := &mockRoundTripper{state: make(map[string]mockObj), pageSize: pageSize}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", presign: s3.NewPresignClient(client)}, rt
}

type mockRoundTripper struct {
	mu       sync.Mutex
	state    map[string]mockObj
	pageSize int
	failPuts bool
}

type mockObj struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) { //nolint:cyclop
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix"), req.URL.Query().Get("continuation-token")), nil
	}
	switch req.Method {
	case http.MethodHead:
		if st, ok := m.state[key]; ok {
			return response(http.StatusOK, nil, m.objectHeader(st)), nil
		}
		return response(http.StatusNotFound, nil, nil), nil
	case http.MethodPut:
		if m.failPuts {
			return response(http.StatusInternalServerError, []byte("<Error><Code>InternalError</Code></Error>"), nil), nil
		}
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		md := map[string]string{}
		for name, vals := range req.Header {
			if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") && len(vals) > 0 {
				md[strings.TrimPrefix(lower, "x-amz-meta-")] = vals[0]
			}
		}
		m.state[key] = mockObj{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		return response(http.StatusOK, nil, http.Header{"ETag": {strconv.Quote(core.ContentETag(body))}}), nil
	case http.MethodGet:
		if st, ok := m.state[key]; ok {
			return response(http.StatusOK, st.body, m.objectHeader(st)), nil
		}
		return response(http.StatusNotFound, []byte("<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>"), http.Header{"Content-Type": {"application/xml"}}), nil
	case http.MethodDelete:
		delete(m.state, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (m *mockRoundTripper) objectHeader(st mockObj) http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(st.body))},
		"Content-Type":   {st.contentType},
		"ETag":           {strconv.Quote(core.ContentETag(st.body))},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for k, v := range st.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func (m *mockRoundTripper) list(prefix, token string) *http.Response {
	var keys []string
	for k := range m.state {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start, _ := strconv.Atoi(token)
	end := start + m.pageSize
	if end > len(keys) {
		end = len(keys)
	}
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?><ListBucketResult>")
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(m.state[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked decodes a single-chunk aws-chunked payload: <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	sz, err := strconv.ParseInt(strings.SplitN(parts[0], ";", 2)[0], 16, 64)
	if err != nil || int64(len(parts[1])) != sz || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}
