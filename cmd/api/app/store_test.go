package app

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestFsObjectStoreRoundTrip(t *testing.T) {
	fs := &FsObjectStore{Base: t.TempDir()}
	ctx := context.Background()
	data := []byte("hello")

	if _, err := fs.PutObject(ctx, "bucket", "a/b.txt", bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := fs.StatObject(ctx, "bucket", "a/b.txt", minio.StatObjectOptions{})
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Fatalf("expected size %d, got %d", len(data), info.Size)
	}
	rc, err := fs.ReadObject("bucket", "a/b.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Fatalf("expected %q, got %q", data, got)
	}
	if err := fs.RemoveObject(ctx, "bucket", "a/b.txt", minio.RemoveObjectOptions{}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := fs.ReadObject("bucket", "a/b.txt"); err == nil {
		t.Fatal("expected read of removed object to fail")
	}
}

func TestFsObjectStoreRejectsTraversal(t *testing.T) {
	fs := &FsObjectStore{Base: t.TempDir()}
	if _, err := fs.PutObject(context.Background(), "bucket", "../../etc/passwd", strings.NewReader("x"), 1, minio.PutObjectOptions{}); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	if _, err := fs.ReadObject("bucket", "../secret"); err == nil {
		t.Fatal("expected traversal read to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"weird name?.txt", "weird name_.txt"},
		{"...", "file"},
		{"", "file"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCommentBlobStoreKey(t *testing.T) {
	s := &CommentBlobStore{Store: &FsObjectStore{Base: t.TempDir()}, Bucket: "attachments"}
	key, err := s.Put(context.Background(), 7, 9, "report.pdf", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(key, "7/9/") {
		t.Fatalf("expected ticket/comment scoped key, got %q", key)
	}
	if !strings.HasSuffix(key, "-report.pdf") {
		t.Fatalf("expected sanitized filename suffix, got %q", key)
	}
}
