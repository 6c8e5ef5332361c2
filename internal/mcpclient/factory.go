package mcpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"magg/internal/authshim"
	"magg/internal/config"
	"magg/pkg/logging"
)

// NewFromServerConfig selects and constructs the concrete Client for a
// ServerConfig from its launch spec:
// a non-empty command always yields a stdio child (python/node/npx/uvx get
// no special construction here beyond being recognized — they are invoked
// exactly as declared, the interpreter/runner resolution is the caller's
// job), and a uri yields SSE when it ends in "/sse" or "/sse/" and
// streamable-HTTP otherwise. Unknown transport options are tolerated: they
// simply go unused by this build.
func NewFromServerConfig(s *config.ServerConfig) (Client, error) {
	switch {
	case s.Command != "":
		return newStdioFromConfig(s), nil
	case s.URI != "":
		return newRemoteFromConfig(s)
	default:
		return nil, fmt.Errorf("server %q declares neither command nor uri", s.Name)
	}
}

func newStdioFromConfig(s *config.ServerConfig) *StdioClient {
	return NewStdioClient(s.Command, s.Args, s.Env, s.Cwd)
}

func newRemoteFromConfig(s *config.ServerConfig) (Client, error) {
	headers := map[string]string{}
	var sseReadTimeout time.Duration
	if t := s.Transport; t != nil {
		for k, v := range t.Headers {
			headers[k] = v
		}
		if t.Auth != nil {
			header, err := authshim.BearerHeader(context.Background(), t.Auth, nil, "")
			if err != nil {
				logging.Warn("mcpclient", "server %q: acquiring bearer token failed: %v", s.Name, err)
			} else if header != "" {
				headers["Authorization"] = header
			}
		}
		if t.SSEReadTimeout > 0 {
			sseReadTimeout = time.Duration(t.SSEReadTimeout * float64(time.Second))
		}
	}

	if IsSSEEndpoint(s.URI) {
		return NewSSEClient(s.URI, headers), nil
	}
	return NewStreamableHTTPClient(s.URI, headers, sseReadTimeout), nil
}

// IsSSEEndpoint reports whether uri's path selects the SSE transport:
// it ends in "/sse" or "/sse/".
func IsSSEEndpoint(uri string) bool {
	trimmed := strings.TrimSuffix(uri, "/")
	return strings.HasSuffix(trimmed, "/sse")
}

// RecognizedCommand reports whether command is one of the well-known
// interpreter/runner commands (python, node, npx, uvx); any
// other command still spawns as a generic stdio child. This is informational
// only — used by the front-end status surface to describe a mount, never to
// gate whether mounting is attempted.
func RecognizedCommand(command string) string {
	base := command
	if idx := strings.LastIndexByte(command, '/'); idx >= 0 {
		base = command[idx+1:]
	}
	switch base {
	case "python", "python3":
		return "python"
	case "node":
		return "node"
	case "npx":
		return "npx"
	case "uvx":
		return "uvx"
	default:
		return "generic"
	}
}
