package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	"github.com/webclinic017/pgjobq/internal/runtime"
)

// RuntimeFunc opens a runtime against the configured database. The
// application that embeds the commands owns configuration resolution
// (files, environment, flags) and hands the result over through this hook.
type RuntimeFunc func(ctx context.Context) (*runtime.Runtime, error)

// withRuntime provides an open runtime and ensures it is closed.
func withRuntime(ctx context.Context, open RuntimeFunc, fn func(*runtime.Runtime) error) error {
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(rt)
}

// decodedMessage returns a map with the message id and one of payload_json,
// payload_text, or payload_b64.
func decodedMessage(id string, payload []byte) map[string]any {
	out := map[string]any{
		"id": id,
	}
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	// Then UTF-8 text if valid
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	// Fallback to base64
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}
