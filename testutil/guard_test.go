package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) {
	r.msg = format
	if len(args) > 0 {
		r.msg = strings.TrimSpace(format + " " + args[0].(string))
	}
}

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package x\n\nimport (\n\t\"fmt\"\n\t\"almazara/internal/infra/blob/s3\"\n)\n\nvar _ = fmt.Sprint\n")
	writeGo(t, dir, "a_test.go", "package x\n\nimport \"github.com/gin-gonic/gin\"\n\nvar _ = gin.New\n")
	writeGo(t, dir, "notes.txt", "import \"go.mongodb.org/mongo-driver/mongo\"")

	viols, err := directImportViolations(dir, Any(InfraImportForbidden, TransportImportForbidden))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "almazara/internal/infra/blob/s3") {
		t.Fatalf("unexpected violations %v", viols)
	}
	rec := &recordingFatal{}
	failIfDirectViolations(rec, "render is pure", viols)
	if !strings.Contains(rec.msg, "render is pure") {
		t.Fatalf("expected failure message, got %q", rec.msg)
	}
	rec = &recordingFatal{}
	failIfDirectViolations(rec, "none", nil)
	if rec.msg != "" {
		t.Fatalf("expected no failure, got %q", rec.msg)
	}
}

func TestPredicates(t *testing.T) {
	if !InternalImportForbidden("almazara/internal/core") || InternalImportForbidden("almazara/pkg/domain") {
		t.Fatalf("internal predicate mismatch")
	}
	if !InfraImportForbidden("almazara/internal/blob") || InfraImportForbidden("almazara/internal/blob/core") {
		t.Fatalf("infra predicate mismatch")
	}
	if !TransportImportForbidden("github.com/aws/aws-sdk-go-v2/service/s3") || TransportImportForbidden("github.com/xuri/excelize/v2") {
		t.Fatalf("transport predicate mismatch")
	}
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "absent"), InternalImportForbidden); err == nil {
		t.Fatalf("expected error")
	}
}
