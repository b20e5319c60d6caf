package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"voucherpipe/internal/config"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testClient(fn roundTripFunc) *Client {
	c := NewClient(config.Config{
		GenAIAPIKey:       "test-key",
		GenAIModel:        "gemini-flash-latest",
		GenAIBaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		GenAITimeoutMs:    5000,
		GenAIRateLimitRPM: 6000,
	})
	c.httpClient = &http.Client{Transport: fn}
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

const fencedResponse = `{
	"candidates": [{"content": {"parts": [{"text": "` + "```json\\n{\\\"invoice_no\\\": \\\"INV-1\\\"}\\n```" + `"}]}}]
}`

func TestExtractPDFStripsCodeFences(t *testing.T) {
	var gotPath, gotKey string
	client := testClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotKey = req.Header.Get("x-goog-api-key")
		return jsonResponse(200, fencedResponse), nil
	})

	out, err := client.ExtractPDF(context.Background(), []byte("%PDF-1.4 fake"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"invoice_no": "INV-1"}` {
		t.Fatalf("out=%q", out)
	}
	if gotPath != "/v1beta/models/gemini-flash-latest:generateContent" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("key header=%q", gotKey)
	}
}

func TestExtractPDFRetriesServerErrors(t *testing.T) {
	calls := 0
	client := testClient(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponse(503, `{"error": {"code": 503, "message": "overloaded"}}`), nil
		}
		return jsonResponse(200, fencedResponse), nil
	})

	out, err := client.ExtractPDF(context.Background(), []byte("blob"))
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d", calls)
	}
	if len(out) == 0 {
		t.Fatal("empty payload")
	}
}

func TestExtractPDFBacksOffTransportErrors(t *testing.T) {
	calls := 0
	client := testClient(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset")
		}
		return jsonResponse(200, fencedResponse), nil
	})

	start := time.Now()
	out, err := client.ExtractPDF(context.Background(), []byte("blob"))
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	if len(out) == 0 {
		t.Fatal("empty payload")
	}
	// Two failed attempts sleep at least 500ms and 1000ms respectively.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("elapsed=%v, transport errors retried without backoff", elapsed)
	}
}

func TestExtractPDFQuotaStatus(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(429, `{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED"}}`), nil
	})

	_, err := client.ExtractPDF(context.Background(), []byte("blob"))
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("err=%v", err)
	}
}

func TestExtractPDFQuotaBody(t *testing.T) {
	client := testClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"error": {"code": 429, "message": "quota", "status": "RESOURCE_EXHAUSTED"}}`), nil
	})

	_, err := client.ExtractPDF(context.Background(), []byte("blob"))
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("err=%v", err)
	}
}

func TestExtractPDFNonRetryableStatus(t *testing.T) {
	calls := 0
	client := testClient(func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(400, `{"error": {"code": 400, "message": "bad request"}}`), nil
	})

	_, err := client.ExtractPDF(context.Background(), []byte("blob"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestExtractPDFMissingKey(t *testing.T) {
	client := NewClient(config.Config{GenAIModel: "gemini-flash-latest"})
	_, err := client.ExtractPDF(context.Background(), []byte("blob"))
	if err == nil || !strings.Contains(err.Error(), "GENAI_API_KEY") {
		t.Fatalf("err=%v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "fenced json", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "bare fence", in: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "no fence", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "surrounding whitespace", in: "  {\"a\": 1}\n", want: `{"a": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := stripCodeFences(tc.in); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
