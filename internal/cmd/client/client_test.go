package client

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgpkg "github.com/webclinic017/pgjobq/internal/config"
	"github.com/webclinic017/pgjobq/internal/runtime"
	logpkg "github.com/webclinic017/pgjobq/pkg/log"
)

// testRuntimeFunc returns a RuntimeFunc bound to PGJOBQ_TEST_DATABASE_URL,
// skipping the test when the variable is unset. The schema is migrated on
// every open; migrations are idempotent.
func testRuntimeFunc(t *testing.T) RuntimeFunc {
	t.Helper()
	url := os.Getenv("PGJOBQ_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PGJOBQ_TEST_DATABASE_URL not set")
	}
	return func(ctx context.Context) (*runtime.Runtime, error) {
		cfg := cfgpkg.Default()
		cfg.Database.URL = url
		cfg.Queue.ReceivePollMs = 100
		rt, err := runtime.Open(ctx, runtime.Options{
			Config: cfg,
			Logger: logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel)),
		})
		if err != nil {
			return nil, err
		}
		if err := rt.Migrate(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
		return rt, nil
	}
}

// runCommand executes cmd with args and returns its combined output.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute %s: %v", cmd.Use, err)
	}
	return buf.String()
}

func TestQueueCreatePrintsStatus(t *testing.T) {
	open := testRuntimeFunc(t)
	name := "cli-" + uuid.NewString()

	out := runCommand(t, newQueueCreateCommand(open), "--name", name)
	if !strings.Contains(out, "status: OK") {
		t.Fatalf("expected status in output, got: %s", out)
	}

	// Creating the same queue again must fail.
	dup := newQueueCreateCommand(open)
	dup.SetOut(&bytes.Buffer{})
	dup.SetErr(&bytes.Buffer{})
	dup.SetArgs([]string{"--name", name})
	if err := dup.Execute(); err == nil {
		t.Fatalf("expected error creating duplicate queue")
	}
}

func TestSendReceiveAckCycle(t *testing.T) {
	open := testRuntimeFunc(t)
	name := "cli-" + uuid.NewString()
	runCommand(t, newQueueCreateCommand(open), "--name", name)

	sendOut := runCommand(t, NewSendCommand(open), "--queue", name, "--data", `{"job":"resize"}`)
	var sent struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal([]byte(sendOut), &sent); err != nil {
		t.Fatalf("parse send output %q: %v", sendOut, err)
	}
	if sent.Status != "OK" || sent.ID == "" {
		t.Fatalf("unexpected send output: %+v", sent)
	}

	recvOut := runCommand(t, NewReceiveCommand(open),
		"--queue", name, "--visibility-ms", "60000", "--block-ms", "3000")
	var got struct {
		ID        string         `json:"id"`
		Payload   map[string]any `json:"payload_json"`
		Attempt   int            `json:"attempt"`
		LockToken string         `json:"lock_token"`
	}
	if err := json.Unmarshal([]byte(recvOut), &got); err != nil {
		t.Fatalf("parse receive output %q: %v", recvOut, err)
	}
	if got.ID != sent.ID || got.Attempt != 1 || got.LockToken == "" {
		t.Fatalf("unexpected receive output: %+v", got)
	}
	if got.Payload["job"] != "resize" {
		t.Fatalf("payload not decoded as JSON: %+v", got.Payload)
	}

	ackOut := runCommand(t, NewAckCommand(open),
		"--queue", name, "--id", got.ID, "--token", got.LockToken)
	if !strings.Contains(ackOut, "status: OK") {
		t.Fatalf("expected status in ack output, got: %s", ackOut)
	}

	// The handle died with the ack.
	again := NewAckCommand(open)
	again.SetOut(&bytes.Buffer{})
	again.SetErr(&bytes.Buffer{})
	again.SetArgs([]string{"--queue", name, "--id", got.ID, "--token", got.LockToken})
	if err := again.Execute(); err == nil {
		t.Fatalf("expected second ack to fail")
	}

	purgeOut := runCommand(t, newQueuePurgeCommand(open), "--name", name)
	var purged struct {
		Purged int64 `json:"purged"`
	}
	if err := json.Unmarshal([]byte(purgeOut), &purged); err != nil {
		t.Fatalf("parse purge output %q: %v", purgeOut, err)
	}
	if purged.Purged < 1 {
		t.Fatalf("expected at least one purged row, got %d", purged.Purged)
	}
}

func TestReceiveEmptyQueueReturnsNothing(t *testing.T) {
	open := testRuntimeFunc(t)
	name := "cli-" + uuid.NewString()
	runCommand(t, newQueueCreateCommand(open), "--name", name)

	out := runCommand(t, NewReceiveCommand(open), "--queue", name, "--block-ms", "300")
	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected no output for empty queue, got: %s", out)
	}
}

func TestSendWaitResolvesWhenConsumerAcks(t *testing.T) {
	open := testRuntimeFunc(t)
	name := "cli-" + uuid.NewString()
	runCommand(t, newQueueCreateCommand(open), "--name", name)

	// The consumer runs in its own runtime instance, so the completion
	// signal crosses through the database.
	recvErr := make(chan error, 1)
	go func() {
		cmd := NewReceiveCommand(open)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"--queue", name, "--block-ms", "10000", "--auto-ack"})
		recvErr <- cmd.Execute()
	}()

	out := runCommand(t, NewSendCommand(open),
		"--queue", name, "--data", "done", "--wait", "--wait-timeout-ms", "10000")
	if !strings.Contains(out, `"completed": true`) {
		t.Fatalf("expected completed in output, got: %s", out)
	}
	if err := <-recvErr; err != nil {
		t.Fatalf("receive: %v", err)
	}
}

func TestMigrateCommandReportsVersion(t *testing.T) {
	open := testRuntimeFunc(t)

	out := runCommand(t, NewMigrateCommand(open))
	var got struct {
		Status  string `json:"status"`
		Version int    `json:"schema_version"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse migrate output %q: %v", out, err)
	}
	if got.Status != "OK" || got.Version < 1 {
		t.Fatalf("unexpected migrate output: %+v", got)
	}
}

func TestReapAndPromoteOneShots(t *testing.T) {
	open := testRuntimeFunc(t)

	reapOut := runCommand(t, NewReapCommand(open), "--limit", "10")
	if !strings.Contains(reapOut, `"reclaimed"`) {
		t.Fatalf("unexpected reap output: %s", reapOut)
	}
	promoteOut := runCommand(t, NewPromoteCommand(open), "--limit", "10")
	if !strings.Contains(promoteOut, `"promoted"`) {
		t.Fatalf("unexpected promote output: %s", promoteOut)
	}
}

func TestFlagValidationDoesNotOpenRuntime(t *testing.T) {
	open := func(context.Context) (*runtime.Runtime, error) {
		t.Fatalf("runtime must not be opened for invalid flags")
		return nil, nil
	}

	cases := []struct {
		name string
		cmd  *cobra.Command
		args []string
	}{
		{"send without queue", NewSendCommand(open), []string{"--data", "x"}},
		{"send without data", NewSendCommand(open), []string{"--queue", "q"}},
		{"receive without queue", NewReceiveCommand(open), nil},
		{"ack without token", NewAckCommand(open), []string{"--queue", "q", "--id", "m"}},
		{"release without id", NewReleaseCommand(open), []string{"--queue", "q", "--token", "t"}},
		{"extend without queue", NewExtendCommand(open), []string{"--id", "m", "--token", "t"}},
		{"stats without name", newQueueStatsCommand(open), nil},
		{"create without name", newQueueCreateCommand(open), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cmd.SetOut(&bytes.Buffer{})
			tc.cmd.SetErr(&bytes.Buffer{})
			tc.cmd.SetArgs(tc.args)
			if err := tc.cmd.Execute(); err == nil {
				t.Fatalf("expected flag validation error")
			}
		})
	}
}

func TestRootRegistersAllCommands(t *testing.T) {
	root := NewRoot(func(context.Context) (*runtime.Runtime, error) {
		return nil, nil
	})
	for _, name := range []string{"queue", "send", "receive", "ack", "release", "extend", "migrate", "reap", "promote"} {
		sub, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("command %q not registered: %v", name, err)
		}
		if sub.Name() != name {
			t.Fatalf("found %q for %q", sub.Name(), name)
		}
	}
}

func TestDecodedMessage(t *testing.T) {
	if m := decodedMessage("a", []byte(`{"k":1}`)); m["payload_json"] == nil {
		t.Fatalf("expected payload_json, got %v", m)
	}
	if m := decodedMessage("b", []byte("plain")); m["payload_text"] != "plain" {
		t.Fatalf("expected payload_text, got %v", m)
	}
	if m := decodedMessage("c", []byte{0xff, 0xfe}); m["payload_b64"] == nil {
		t.Fatalf("expected payload_b64, got %v", m)
	}
}
