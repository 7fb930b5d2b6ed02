package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orrn/printdesk/internal/config"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/storage"
)

func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c, err := config.Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	c.Database.Driver = "sqlite"
	c.Database.Path = filepath.Join(dir, "printdesk.db")
	c.Storage.Driver = "local"
	c.Storage.LocalDir = filepath.Join(dir, "documents")

	cfg = c
	t.Cleanup(func() { cfg = nil })
	return c
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("printdesk %v: %v", args, err)
	}
	return out.String()
}

func TestMigrateCommand(t *testing.T) {
	useTestConfig(t)
	if got := run(t, "", "migrate"); !strings.Contains(got, "schema up to date (sqlite)") {
		t.Errorf("output = %q", got)
	}
}

func TestJobsListCommand(t *testing.T) {
	c := useTestConfig(t)
	ctx := context.Background()

	be, err := openBackend(ctx, c.Database)
	if err != nil {
		t.Fatal(err)
	}
	artifacts, _, err := openArtifacts(c.Storage, c.Server.MaxUploadBytes)
	if err != nil {
		t.Fatal(err)
	}
	manager := core.NewJobManager(be.jobs, artifacts)
	for _, name := range []string{"alpha.pdf", "beta.pdf"} {
		if _, err := manager.Submit(ctx, core.SubmitRequest{
			FileName: name,
			Config:   core.DefaultPrintConfig(),
			Body:     strings.NewReader("%PDF " + name),
		}); err != nil {
			t.Fatal(err)
		}
	}
	be.close()

	listStatus, listSearch, listJSON = core.StatusFilterAll, "", false
	t.Cleanup(func() { listStatus, listSearch, listJSON = core.StatusFilterAll, "", false })

	out := run(t, "", "jobs", "list", "--search", "alpha", "--json")
	var jobs []core.PrintJob
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(jobs) != 1 || jobs[0].FileName != "alpha.pdf" || jobs[0].Status != core.JobStatusAwaitingPayment {
		t.Fatalf("jobs = %+v", jobs)
	}

	listSearch, listJSON = "", false
	table := run(t, "", "jobs", "list", "--search", "", "--json=false")
	if !strings.Contains(table, "alpha.pdf") || !strings.Contains(table, "beta.pdf") {
		t.Errorf("table = %q", table)
	}
	if !strings.Contains(table, "1x color a4 portrait") {
		t.Errorf("table lacks config column: %q", table)
	}
}

func TestPasswdCommand(t *testing.T) {
	c := useTestConfig(t)
	passwdValue = ""

	if got := run(t, "hunter22\n", "passwd"); !strings.Contains(got, "operator password updated") {
		t.Fatalf("output = %q", got)
	}

	be, err := openBackend(context.Background(), c.Database)
	if err != nil {
		t.Fatal(err)
	}
	defer be.close()
	hash, ok, err := be.settings.GetSetting(context.Background(), "operator_password")
	if err != nil || !ok {
		t.Fatalf("password not stored: ok=%v err=%v", ok, err)
	}
	if hash == "hunter22" {
		t.Error("password stored in clear text")
	}
}

func TestOpenBackendUnknownDriver(t *testing.T) {
	if _, err := openBackend(context.Background(), config.DatabaseConfig{Driver: "mongo"}); err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := openArtifacts(config.StorageConfig{Driver: "ftp"}, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenArtifactsPinning(t *testing.T) {
	store, docs, err := openArtifacts(config.StorageConfig{
		Driver:            "pinning",
		PinningBaseURL:    "https://api.example",
		PinningGatewayURL: "https://gw.example",
		PinningAPIKey:     "k",
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*storage.PinningClient); !ok {
		t.Errorf("store = %T", store)
	}
	if docs != nil {
		t.Error("remote storage should not expose a local reader")
	}
}

func TestServeRequiresPaymentSecret(t *testing.T) {
	c := useTestConfig(t)
	c.Payment.WebhookSecret = ""
	c.Payment.StubDelay = 0

	err := serve(context.Background(), c)
	if err == nil || !strings.Contains(err.Error(), "webhook_secret") {
		t.Fatalf("serve() = %v, want webhook_secret error", err)
	}
}
