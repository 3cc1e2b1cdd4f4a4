// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package attachment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/model"
)

// Fetcher downloads attachment bytes from the CDN URL recorded at ingest
// time. Kept as an interface so tests can substitute an in-memory fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches attachment bytes over plain HTTP(S), matching how
// the platform's CDN URLs are served.
type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: 300 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Pipeline runs the gate, fetch, and per-kind extraction for one
// attachment, producing the DocumentChunks to be stored and indexed.
type Pipeline struct {
	Fetcher   Fetcher
	Captioner Captioner
}

func NewPipeline(fetcher Fetcher, captioner Captioner) *Pipeline {
	return &Pipeline{Fetcher: fetcher, Captioner: captioner}
}

// Process fetches and extracts an attachment's content. scratchPath is used
// only for PDF extraction, which go-fitz requires a file path for; callers
// write the fetched bytes to a scratch file beforehand for PDF sources.
func (p *Pipeline) Process(ctx context.Context, att model.Attachment, scratchPath string) ([]model.DocumentChunk, error) {
	if err := Gate(att.Filename, att.ByteSize); err != nil {
		return nil, err
	}

	raw, err := p.Fetcher.Fetch(ctx, att.CDNURL)
	if err != nil {
		return nil, apperror.Upstream("attachment.Pipeline.Process", err)
	}

	var chunks []model.DocumentChunk
	switch att.SourceType {
	case model.SourcePDF:
		chunks, err = ExtractPDF(scratchPath)
	case model.SourceMarkdown:
		chunks, err = ExtractMarkdown(raw)
	case model.SourceText:
		chunks, err = ExtractText(raw)
	case model.SourceImage:
		if p.Captioner == nil {
			return nil, apperror.Validation("attachment.Pipeline.Process", fmt.Errorf("no captioner configured for image attachments"))
		}
		chunks, err = ExtractImage(ctx, p.Captioner, raw, att.MIME)
	default:
		return nil, apperror.Validation("attachment.Pipeline.Process", fmt.Errorf("unsupported source type %q", att.SourceType))
	}
	if err != nil {
		return nil, apperror.Upstream("attachment.Pipeline.Process", err)
	}

	for i := range chunks {
		chunks[i].AttachmentID = att.ID
		chunks[i].TenantID = att.TenantID
	}
	return chunks, nil
}
