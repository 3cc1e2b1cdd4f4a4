// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package attachment

import "testing"

func TestGate_AllowsWhitelisted(t *testing.T) {
	if err := Gate("report.pdf", 1024); err != nil {
		t.Errorf("expected pdf within size limit to pass, got %v", err)
	}
}

func TestGate_BlocksBlacklisted(t *testing.T) {
	if err := Gate("payload.exe", 1024); err == nil {
		t.Error("expected .exe to be blocked")
	}
}

func TestGate_RejectsUnknownExtension(t *testing.T) {
	if err := Gate("archive.zip", 1024); err == nil {
		t.Error("expected unlisted extension to be rejected")
	}
}

func TestGate_RejectsOversize(t *testing.T) {
	if err := Gate("huge.pdf", 11*1024*1024); err == nil {
		t.Error("expected file over 10 MiB to be rejected")
	}
}

func TestSourceTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.pdf": "pdf", "b.md": "markdown", "c.txt": "text",
		"d.png": "image", "e.jpg": "image",
	}
	for name, want := range cases {
		if got := SourceTypeFor(name); got != want {
			t.Errorf("SourceTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
