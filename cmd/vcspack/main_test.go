package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBlobName(t *testing.T) {
	tests := []struct {
		name        string
		wantStatic  uint32
		wantDynamic int
		wantOK      bool
	}{
		{"3_1.spv", 3, 1, true},
		{"0_0", 0, 0, true},
		{"12_7.bin", 12, 7, true},
		{"readme.txt", 0, 0, false},
		{"a_1.spv", 0, 0, false},
		{"1_-2.spv", 0, 0, false},
	}
	for _, tt := range tests {
		s, d, ok := parseBlobName(tt.name)
		if s != tt.wantStatic || d != tt.wantDynamic || ok != tt.wantOK {
			t.Errorf("parseBlobName(%q) = %d, %d, %v, want %d, %d, %v",
				tt.name, s, d, ok, tt.wantStatic, tt.wantDynamic, tt.wantOK)
		}
	}
}

func TestPackDump(t *testing.T) {
	tests := []struct {
		version string
		args    []string
		want    []string
	}{
		{"4", nil, []string{"version 4", "static combos 2", "static 0: 0=4B 2=6B", "static 1: 1=4B"}},
		{"5", []string{"-compression", "bzip2"}, []string{"version 5", "static 0: 0=4B 2=6B", "static 1: 1=4B"}},
		{"6", []string{"-alias", "5=1"}, []string{"version 6", "alias 5 -> 1", "static 1: 1=4B"}},
	}
	for _, tt := range tests {
		t.Run("v"+tt.version, func(t *testing.T) {
			in := t.TempDir()
			blobs := map[string]string{"0_0.bin": "aaaa", "0_2.bin": "bbbbbb", "1_1.bin": "cccc", "notes.txt": "x"}
			for name, data := range blobs {
				if err := os.WriteFile(filepath.Join(in, name), []byte(data), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			out := filepath.Join(t.TempDir(), "test.vcs")
			args := append([]string{"-version", tt.version, "-o", out}, tt.args...)
			if err := runPack(append(args, in)); err != nil {
				t.Fatalf("runPack() error = %v", err)
			}

			var buf bytes.Buffer
			if err := runDump(&buf, []string{"-combos", out}); err != nil {
				t.Fatalf("runDump() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("dump output lacks %q:\n%s", w, buf.String())
				}
			}
		})
	}
}
