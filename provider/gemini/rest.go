package gemini

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultBaseUrl = "https://generativelanguage.googleapis.com"

// RestClient calls the Gemini REST API. Its methods satisfy GenerateFunc and
// StreamFunc.
type RestClient struct {
	ApiKey     string
	BaseUrl    string
	HttpClient *http.Client
}

func NewRestClient(apiKey string) *RestClient {
	return &RestClient{
		ApiKey:     apiKey,
		BaseUrl:    DefaultBaseUrl,
		HttpClient: http.DefaultClient,
	}
}

func (rc *RestClient) endpoint(model, method string, query url.Values) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s?%s", strings.TrimRight(rc.BaseUrl, "/"), url.PathEscape(model), method, query.Encode())
}

func (rc *RestClient) do(ctx context.Context, u string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", rc.ApiKey)

	res, err := rc.HttpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		bs, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("gemini responded with status %d: %s", res.StatusCode, string(bs))
	}

	return res, nil
}

func (rc *RestClient) GenerateContent(ctx context.Context, model string, body []byte) ([]byte, error) {
	res, err := rc.do(ctx, rc.endpoint(model, "generateContent", url.Values{}), body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	return io.ReadAll(res.Body)
}

func (rc *RestClient) StreamGenerateContent(ctx context.Context, model string, body []byte) (ChunkReader, error) {
	res, err := rc.do(ctx, rc.endpoint(model, "streamGenerateContent", url.Values{"alt": []string{"sse"}}), body)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &sseReader{body: res.Body, scanner: scanner}, nil
}

type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (r *sseReader) Recv() ([]byte, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}

		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 {
			continue
		}

		return append([]byte{}, data...), nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}

func (r *sseReader) Close() error {
	return r.body.Close()
}
