// Package doctor runs runtime readiness diagnostics for config, audio, and the inference service.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/fala/internal/audio"
	"github.com/rbright/fala/internal/config"
	"github.com/rbright/fala/internal/health"
	"github.com/rbright/fala/internal/ipc"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkAPIKey(cfg.Config.Inference))
	checks = append(checks, checkSocket())

	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	checks = append(checks, checkAudioSelection(cfg.Config))
	checks = append(checks, checkInferenceReachable(cfg.Config.Inference))
	checks = append(checks, checkClip("turn.thinking_file", cfg.Config.Turn.ThinkingFile)...)
	checks = append(checks, checkClip("turn.fallback_file", cfg.Config.Turn.FallbackFile)...)

	if addr := strings.TrimSpace(cfg.Config.Health.GRPCListen); addr != "" {
		checks = append(checks, checkHealth(addr))
	}

	return Report{Checks: checks}
}

// checkAPIKey reports whether an API key is available for the handshake.
func checkAPIKey(cfg config.InferenceConfig) Check {
	key, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return Check{Name: "inference.api_key", Pass: false, Message: err.Error()}
	}
	if key == "" {
		return Check{Name: "inference.api_key", Pass: false, Message: "api_key and api_key_file are both empty"}
	}
	return Check{Name: "inference.api_key", Pass: true, Message: "api key resolved"}
}

// checkSocket resolves the daemon socket path and reports whether a daemon answers.
func checkSocket() Check {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return Check{Name: "ipc.socket", Pass: false, Message: err.Error()}
	}
	alive, err := ipc.Probe(context.Background(), path, 200*time.Millisecond)
	if err != nil {
		return Check{Name: "ipc.socket", Pass: false, Message: fmt.Sprintf("probe %s: %v", path, err)}
	}
	if alive {
		return Check{Name: "ipc.socket", Pass: true, Message: fmt.Sprintf("daemon listening at %s", path)}
	}
	return Check{Name: "ipc.socket", Pass: true, Message: fmt.Sprintf("no daemon at %s", path)}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live source selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectSource(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.source", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Source.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.source", Pass: true, Message: message}
}

// checkInferenceReachable confirms something answers HTTP at the service base URL.
// Any status counts: the turn endpoints only accept POST.
func checkInferenceReachable(cfg config.InferenceConfig) Check {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return Check{Name: "inference.reachable", Pass: false, Message: "base_url is empty"}
	}

	client := http.Client{Timeout: probeTimeout}
	resp, err := client.Get(base + "/")
	if err != nil {
		return Check{Name: "inference.reachable", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	return Check{Name: "inference.reachable", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, base)}
}

// checkClip decodes an optional clip file. Unset paths produce no check.
func checkClip(name string, path string) []Check {
	path = config.ExpandUserPath(path)
	if path == "" {
		return nil
	}
	clip, err := audio.LoadClip(path)
	if err != nil {
		return []Check{{Name: name, Pass: false, Message: err.Error()}}
	}
	return []Check{{
		Name:    name,
		Pass:    true,
		Message: fmt.Sprintf("%s (%d Hz, %d ch)", clip.Duration().Round(time.Millisecond), clip.SampleRate, clip.Channels),
	}}
}

// checkHealth asks a running daemon for its health status.
func checkHealth(addr string) Check {
	status, err := health.Probe(context.Background(), addr, health.Service, probeTimeout)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: err.Error()}
	}
	return Check{
		Name:    "health",
		Pass:    status == healthpb.HealthCheckResponse_SERVING,
		Message: fmt.Sprintf("%s at %s", status.String(), addr),
	}
}
