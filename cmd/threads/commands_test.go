package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alfredjeanlab/threads/internal/client"
	"github.com/alfredjeanlab/threads/internal/idgen"
	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/server"
	"github.com/alfredjeanlab/threads/internal/store/gormstore"
	"github.com/alfredjeanlab/threads/internal/threads"
)

// startTestServer points threadsClient at a sqlite-backed HTTP server.
func startTestServer(t *testing.T) {
	t.Helper()
	st, err := gormstore.OpenSQLite(":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	svc := threads.New(st, threads.WithIDs(idgen.Sequence("cm-")))
	srv := httptest.NewServer(server.NewThreadsServer(svc, logger.Nop()).NewHTTPHandler(""))
	t.Cleanup(srv.Close)

	threadsClient = client.NewHTTPClient(srv.URL)
	t.Cleanup(func() { threadsClient = nil })
}

// resetFlags restores every flag to its default so runs don't leak state.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { resetFlags(rootCmd) })
	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("threads %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCommands_Thread(t *testing.T) {
	startTestServer(t)

	out := mustRun(t, "add", "Post", "1", "first", "post", "--author", "ann")
	if !strings.Contains(out, "added cm-1 (1,2)") {
		t.Errorf("add output = %q", out)
	}
	out = mustRun(t, "add", "Post", "1", "a", "reply", "--author", "bob", "--parent", "cm-1")
	if !strings.Contains(out, "added cm-2 (2,3)") {
		t.Errorf("reply output = %q", out)
	}
	mustRun(t, "add", "Post", "1", "second", "--author", "ann")

	out = mustRun(t, "nested", "Post", "1", "--bounds")
	want := []string{"cm-1 ann (1,4): first post", "  cm-2 bob (2,3): a reply", "cm-3 ann (5,6): second", "page 1 of 1 (2 total)"}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("nested output missing %q:\n%s", w, out)
		}
	}

	out = mustRun(t, "nested", "Post", "1", "--depth", "0")
	if strings.Contains(out, "cm-2") {
		t.Errorf("depth 0 should hide replies:\n%s", out)
	}

	out = mustRun(t, "roots", "Post", "1", "--order", "asc", "--items", "1")
	if !strings.Contains(out, "cm-1") || strings.Contains(out, "cm-3") {
		t.Errorf("roots output:\n%s", out)
	}

	out = mustRun(t, "by-user", "ann", "--json")
	var page model.Page
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decoding by-user JSON: %v\n%s", err, out)
	}
	if page.Info.TotalCount != 2 {
		t.Errorf("by-user total = %d, want 2", page.Info.TotalCount)
	}

	out = mustRun(t, "ancestors", "Post", "1", "cm-2")
	if !strings.Contains(out, "cm-1") {
		t.Errorf("ancestors output:\n%s", out)
	}

	if out := mustRun(t, "verify", "Post", "1"); !strings.Contains(out, "ok: 3 comment(s)") {
		t.Errorf("verify output = %q", out)
	}
	if out := mustRun(t, "delete", "Post", "1", "cm-1"); !strings.Contains(out, "removed 2 comment(s)") {
		t.Errorf("delete output = %q", out)
	}
	if out := mustRun(t, "destroy", "Post", "1"); !strings.Contains(out, "removed 1 comment(s)") {
		t.Errorf("destroy output = %q", out)
	}
	if out := mustRun(t, "has", "Post", "1"); strings.TrimSpace(out) != "false" {
		t.Errorf("has output = %q", out)
	}
}

func TestCommands_Errors(t *testing.T) {
	startTestServer(t)

	if _, err := run(t, "add", "Post", "1", "orphan", "--author", "ann", "--parent", "cm-nope"); !client.IsNotFound(err) {
		t.Errorf("missing parent err = %v, want not found", err)
	}
	if _, err := run(t, "nested", "Post", "1", "--depth", "-1"); err == nil {
		t.Error("negative depth should fail")
	}
	if _, err := run(t, "by-user", "ann", "Post"); err == nil {
		t.Error("by-user with two args should fail")
	}
	if _, err := run(t, "roots", "Post", "1", "--retries", "-1"); err == nil {
		t.Error("negative retries should fail")
	}
}
