package store

import (
	"context"
	"strings"
	"testing"
)

func TestImportProxiesCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"host,port,username,password,protocol",
		"10.0.0.1,8080,u1,p1,http",
		"10.0.0.2,3128,,,socks5",
		"10.0.0.1,8080,u1,changed,http", // same endpoint, new password: dedup skips
	}, "\n")

	report, err := s.ImportProxiesCSV(ctx, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("import proxies: %v", err)
	}
	if report.Imported != 2 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 2 imported / 1 skipped", report)
	}
}

func TestImportProxiesBadPort(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ImportProxiesCSV(context.Background(),
		strings.NewReader("host,port\nexample.com,eighty\n"))
	if err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestImportAccountsCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"email,password,provider",
		"a@example.com,s1,gmail",
		"b@example.com,s2,outlook",
		"a@example.com,s3,gmail", // duplicate address
	}, "\n")

	report, err := s.ImportAccountsCSV(ctx, strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("import accounts: %v", err)
	}
	if report.Imported != 2 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 2 imported / 1 skipped", report)
	}
}

func TestImportEmptyFile(t *testing.T) {
	s := newTestStore(t)
	report, err := s.ImportAccountsCSV(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty file should import nothing, got %v", err)
	}
	if report.Imported != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v, want zeroes", report)
	}
}
