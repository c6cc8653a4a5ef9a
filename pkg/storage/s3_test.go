package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateDocument(t *testing.T) {
	cases := []struct {
		kind    DocumentKind
		ct      string
		wantExt string
		wantErr bool
	}{
		{DocumentAvatar, "image/png", ".png", false},
		{DocumentAvatar, "IMAGE/JPEG", ".jpg", false},
		{DocumentAvatar, "application/pdf", "", true},
		{DocumentCV, "application/pdf", ".pdf", false},
		{DocumentCV, "image/png", "", true},
		{DocumentKind("video"), "video/mp4", "", true},
	}
	for _, tc := range cases {
		ext, err := ValidateDocument(tc.kind, tc.ct)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ValidateDocument(%s, %s) err = %v, wantErr %v", tc.kind, tc.ct, err, tc.wantErr)
		}
		if ext != tc.wantExt {
			t.Fatalf("ValidateDocument(%s, %s) ext = %q, want %q", tc.kind, tc.ct, ext, tc.wantExt)
		}
	}
}

func TestDocumentKeyOwnership(t *testing.T) {
	companyID := uuid.New()
	key := DocumentKey(companyID, DocumentCV, ".pdf")
	if !strings.HasPrefix(key, "companies/"+companyID.String()+"/cv/") || !strings.HasSuffix(key, ".pdf") {
		t.Fatalf("unexpected key %q", key)
	}
	if !KeyBelongsTo(key, companyID, DocumentCV) {
		t.Fatalf("key should belong to its company")
	}
	if KeyBelongsTo(key, uuid.New(), DocumentCV) {
		t.Fatalf("key must not belong to another company")
	}
	if KeyBelongsTo(key, companyID, DocumentAvatar) {
		t.Fatalf("key must not match another kind")
	}
	if KeyBelongsTo("companies/"+companyID.String()+"/cv/../../x", companyID, DocumentCV) {
		t.Fatalf("path traversal must be rejected")
	}
}
