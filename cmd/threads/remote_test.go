package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := RemotesConfig{
		Active: "prod",
		Remotes: map[string]Remote{
			"prod":  {URL: "https://threads.example.com", GRPCAddr: "threads.example.com:9090", Token: "tok_abc"},
			"local": {URL: "http://localhost:8080"},
		},
	}
	if err := saveRemotesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" {
		t.Errorf("Active = %q, want %q", got.Active, "prod")
	}
	prod := got.Remotes["prod"]
	if prod.URL != "https://threads.example.com" || prod.GRPCAddr != "threads.example.com:9090" || prod.Token != "tok_abc" {
		t.Errorf("prod remote = %+v, wrong values", prod)
	}
}

func TestLoadRemotesConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || len(cfg.Remotes) != 0 || cfg.Remotes == nil {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestSaveRemotesConfig_Permissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := saveRemotesConfig(RemotesConfig{Remotes: map[string]Remote{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	path, _ := remoteConfigPath()
	if !strings.HasSuffix(path, filepath.Join(".local", "state", "threads", "remotes.toml")) {
		t.Errorf("path = %s", path)
	}
	check := func(p string, want os.FileMode) {
		t.Helper()
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
	check(path, 0o600)
	check(filepath.Dir(path), 0o700)
}

func TestRemoteLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mustRun := func(fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	remoteUseCmd.SetOut(&buf)
	remoteRemoveCmd.SetOut(&buf)

	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "http://localhost:8080"}) })
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "http://localhost:8080"}) }) // upsert
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"alt", "http://alt:8080"}) })
	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"local"}) })

	cfg, _ := loadRemotesConfig()
	if cfg.Active != "local" || len(cfg.Remotes) != 2 {
		t.Fatalf("config = %+v", cfg)
	}

	buf.Reset()
	remoteListCmd.SetOut(&buf)
	mustRun(func() error { return remoteListCmd.RunE(remoteListCmd, nil) })
	out := buf.String()
	if !strings.Contains(out, "* local") || !strings.Contains(out, "  alt") {
		t.Errorf("list output:\n%s", out)
	}
	if strings.Index(out, "alt") > strings.Index(out, "local") {
		t.Errorf("list should be sorted by name:\n%s", out)
	}

	buf.Reset()
	remoteShowCmd.SetOut(&buf)
	mustRun(func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) })
	out = buf.String()
	if !strings.Contains(out, "local (active)") || !strings.Contains(out, "http://localhost:8080") {
		t.Errorf("show output:\n%s", out)
	}

	mustRun(func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"local"}) })
	cfg, _ = loadRemotesConfig()
	if _, ok := cfg.Remotes["local"]; ok {
		t.Error("remote 'local' should be gone")
	}
	if cfg.Active != "" {
		t.Errorf("Active should be cleared, got %q", cfg.Active)
	}
}

func TestRemoteTokenMasking(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := remoteAddCmd.Flags().Set("token", "tok_verylongsecret"); err != nil {
		t.Fatalf("set token flag: %v", err)
	}
	t.Cleanup(func() { _ = remoteAddCmd.Flags().Set("token", "") })

	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	remoteUseCmd.SetOut(&buf)
	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"prod", "https://threads.example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := remoteUseCmd.RunE(remoteUseCmd, []string{"prod"}); err != nil {
		t.Fatal(err)
	}

	buf.Reset()
	remoteListCmd.SetOut(&buf)
	if err := remoteListCmd.RunE(remoteListCmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "tok_verylongsecret") || !strings.Contains(buf.String(), "tok_very...") {
		t.Errorf("list token not masked:\n%s", buf.String())
	}

	buf.Reset()
	remoteShowCmd.SetOut(&buf)
	if err := remoteShowCmd.RunE(remoteShowCmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "tok_verylongsecret") || !strings.Contains(buf.String(), "tok_very...") {
		t.Errorf("show token not masked:\n%s", buf.String())
	}
}

func TestRemoteErrorCases(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func() error
	}{
		{"use unknown", func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"ghost"}) }},
		{"remove unknown", func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"ghost"}) }},
		{"show no active", func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) }},
		{"rename unknown", func() error { return remoteRenameCmd.RunE(remoteRenameCmd, []string{"ghost", "spirit"}) }},
		{"add bad url", func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"bad", "localhost:8080"}) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			if err := tc.fn(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRemoteValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		remote Remote
		ok     bool
	}{
		{"http", Remote{URL: "http://localhost:8080"}, true},
		{"grpc", Remote{URL: "https://threads.example.com", GRPCAddr: "threads.example.com:9090", Transport: "grpc"}, true},
		{"no scheme", Remote{URL: "localhost:8080"}, false},
		{"grpc without addr", Remote{URL: "http://localhost:8080", Transport: "grpc"}, false},
		{"unknown transport", Remote{URL: "http://localhost:8080", Transport: "smtp"}, false},
		{"negative retries", Remote{URL: "http://localhost:8080", Retries: -1}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.remote.validate(); (err == nil) != tc.ok {
				t.Errorf("validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestRemoteRename(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := saveRemotesConfig(RemotesConfig{
		Active: "old",
		Remotes: map[string]Remote{
			"old":   {URL: "http://old:8080", Retries: 2},
			"other": {URL: "http://other:8080"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	remoteRenameCmd.SetOut(&buf)
	if err := remoteRenameCmd.RunE(remoteRenameCmd, []string{"old", "other"}); err == nil {
		t.Fatal("rename onto an existing remote should fail")
	}
	if err := remoteRenameCmd.RunE(remoteRenameCmd, []string{"old", "new"}); err != nil {
		t.Fatal(err)
	}

	cfg, _ := loadRemotesConfig()
	if cfg.Active != "new" {
		t.Errorf("Active = %q, want new", cfg.Active)
	}
	if r, ok := cfg.Remotes["new"]; !ok || r.URL != "http://old:8080" || r.Retries != 2 {
		t.Errorf("renamed remote = %+v, %v", r, ok)
	}
	if _, ok := cfg.Remotes["old"]; ok {
		t.Error("old name still present")
	}
}

func TestRemotesConfig_Lookup(t *testing.T) {
	cfg := RemotesConfig{
		Active: "prod",
		Remotes: map[string]Remote{
			"prod":    {URL: "https://threads.example.com"},
			"staging": {URL: "https://staging.example.com", Transport: "grpc", GRPCAddr: "staging:9090"},
		},
	}
	name, r, err := cfg.lookup("")
	if err != nil || name != "prod" || r.URL != "https://threads.example.com" {
		t.Errorf("lookup(\"\") = %q, %+v, %v", name, r, err)
	}
	name, r, err = cfg.lookup("staging")
	if err != nil || name != "staging" || transportOf(r) != "grpc staging:9090" {
		t.Errorf("lookup(staging) = %q, %+v, %v", name, r, err)
	}
	if _, _, err := (RemotesConfig{}).lookup(""); err == nil {
		t.Error("lookup with no active remote should fail")
	}
}
