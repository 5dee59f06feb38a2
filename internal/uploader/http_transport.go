package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/cascadewire/chunkupload/internal/netadapter"
)

// HTTPTransportConfig names the three endpoints and static headers of
// the wire protocol.
type HTTPTransportConfig struct {
	Endpoint      string
	CheckEndpoint string
	MergeEndpoint string
	Headers       map[string]string
}

// httpTransport is the default Transport: a generic precheck/chunk/
// merge JSON-and-bytes protocol, carried over go-retryablehttp via
// netadapter.Adapter.
type httpTransport struct {
	adapter *netadapter.Adapter
	cfg     HTTPTransportConfig
}

// NewHTTPTransport builds the default Transport over adapter.
func NewHTTPTransport(adapter *netadapter.Adapter, cfg HTTPTransportConfig) Transport {
	return &httpTransport{adapter: adapter, cfg: cfg}
}

func (t *httpTransport) baseHeaders() nethttp.Header {
	h := nethttp.Header{}
	for k, v := range t.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func (t *httpTransport) Precheck(ctx context.Context, fileID string, req PrecheckRequest) (PrecheckResponse, error) {
	body, err := json.Marshal(struct {
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		Type        string `json:"type"`
		Fingerprint string `json:"fingerprint"`
	}{req.Name, req.Size, req.Type, req.Fingerprint})
	if err != nil {
		return PrecheckResponse{}, fmt.Errorf("uploader: encode precheck request: %w", err)
	}

	headers := t.baseHeaders()
	headers.Set("Content-Type", "application/json")
	resp, err := t.adapter.Request(ctx, nethttp.MethodPost, t.cfg.CheckEndpoint, bytes.NewReader(body), headers)
	if err != nil {
		return PrecheckResponse{}, fmt.Errorf("uploader: precheck request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PrecheckResponse{}, fmt.Errorf("uploader: precheck returned status %d", resp.StatusCode)
	}

	var decoded struct {
		Exists         bool   `json:"exists"`
		URL            string `json:"url"`
		UploadID       string `json:"uploadId"`
		ReceivedChunks []int  `json:"receivedChunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return PrecheckResponse{}, fmt.Errorf("uploader: decode precheck response: %w", err)
	}
	return PrecheckResponse{
		Exists:         decoded.Exists,
		URL:            decoded.URL,
		UploadID:       decoded.UploadID,
		ReceivedChunks: decoded.ReceivedChunks,
	}, nil
}

func (t *httpTransport) UploadChunk(ctx context.Context, fileID string, index int, meta ChunkMeta, data []byte) error {
	headers := t.baseHeaders()
	headers.Set("X-Upload-Id", meta.UploadID)
	headers.Set("X-Chunk-Index", fmt.Sprintf("%d", index))
	headers.Set("X-Chunk-Count", fmt.Sprintf("%d", meta.TotalChunks))
	headers.Set("X-Fingerprint", meta.Fingerprint)
	headers.Set("Content-Length", fmt.Sprintf("%d", len(data)))

	resp, err := t.adapter.UploadChunk(ctx, fileID, t.cfg.Endpoint, data, headers)
	if err != nil {
		return fmt.Errorf("uploader: upload chunk %d: %w", index, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("uploader: chunk %d upload returned status %d", index, resp.StatusCode)
	}
	return nil
}

func (t *httpTransport) Merge(ctx context.Context, fileID string, req MergeRequest) (MergeResponse, error) {
	body, err := json.Marshal(struct {
		UploadID    string `json:"uploadId"`
		Fingerprint string `json:"fingerprint"`
		Name        string `json:"name"`
		TotalChunks int    `json:"totalChunks"`
	}{req.UploadID, req.Fingerprint, req.Name, req.TotalChunks})
	if err != nil {
		return MergeResponse{}, fmt.Errorf("uploader: encode merge request: %w", err)
	}

	headers := t.baseHeaders()
	headers.Set("Content-Type", "application/json")
	resp, err := t.adapter.Request(ctx, nethttp.MethodPost, t.cfg.MergeEndpoint, bytes.NewReader(body), headers)
	if err != nil {
		return MergeResponse{}, fmt.Errorf("uploader: merge request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MergeResponse{}, fmt.Errorf("uploader: merge returned status %d", resp.StatusCode)
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return MergeResponse{}, fmt.Errorf("uploader: decode merge response: %w", err)
	}
	return MergeResponse{URL: decoded.URL}, nil
}

func (t *httpTransport) Abort(fileID string) { t.adapter.Abort(fileID) }
func (t *httpTransport) AbortAll()           { t.adapter.AbortAll() }
func (t *httpTransport) NetworkQuality() string {
	return string(t.adapter.GetNetworkQuality())
}
