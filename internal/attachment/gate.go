// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package attachment implements the C4.4.6 attachment pipeline: a
// whitelist/blacklist/size gate followed by per-kind text extraction and
// chunking, grounded on the teacher's internal/parser dispatch-by-extension
// style (internal/parser/dispatcher.go) and its PDF/text parsers.
package attachment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/northbound/cil/internal/apperror"
)

const maxSizeBytes = 10 * 1024 * 1024 // 10 MiB

var whitelist = map[string]bool{
	"pdf": true, "txt": true, "md": true,
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
}

var blacklist = map[string]bool{
	"exe": true, "bat": true, "sh": true, "ps1": true,
	"dll": true, "so": true, "bin": true,
}

// Gate validates a candidate attachment against the whitelist, blacklist,
// and size ceiling before any work item is enqueued for it. A violation is
// a hard Validation error — never a partial pass.
func Gate(filename string, sizeBytes int64) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

	if blacklist[ext] {
		return apperror.Validation("attachment.Gate", fmt.Errorf("file kind %q is blocked", ext))
	}
	if !whitelist[ext] {
		return apperror.Validation("attachment.Gate", fmt.Errorf("file kind %q is not in the supported whitelist", ext))
	}
	if sizeBytes > maxSizeBytes {
		return apperror.Validation("attachment.Gate", fmt.Errorf("file size %d exceeds the %d byte limit", sizeBytes, maxSizeBytes))
	}
	return nil
}

// SourceTypeFor maps a file extension to the model.AttachmentSourceType
// category used for payload filtering and document-bias query rewriting.
func SourceTypeFor(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "pdf":
		return "pdf"
	case "md":
		return "markdown"
	case "txt":
		return "text"
	case "png", "jpg", "jpeg", "gif", "webp":
		return "image"
	default:
		return "document"
	}
}
