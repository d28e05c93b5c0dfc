package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// NTMClient fetches the session-manager view.
type NTMClient interface {
	Fetch(ctx context.Context) (NTMSnapshot, error)
}

// BeadsClient fetches the issue-tracker view.
type BeadsClient interface {
	Fetch(ctx context.Context) (BeadsSnapshot, error)
}

// ToolHealthClient fetches the workflow-tool view.
type ToolHealthClient interface {
	Fetch(ctx context.Context) (ToolHealthSnapshot, error)
}

// MailReader fetches the Agent Mail view.
type MailReader interface {
	Fetch(ctx context.Context) (AgentMailSnapshot, error)
}

// MailDirName is the working-directory subfolder holding the Agent Mail
// JSONL store.
const MailDirName = ".agent-mail"

type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(cmd.Environ(), "NO_COLOR=1")
	out, err := cmd.Output()
	return string(out), err
}

// cliNTMClient shells out to the ntm CLI.
type cliNTMClient struct {
	lookPath func(string) (string, error)
	run      commandRunner
}

// NewNTMClient returns the CLI-backed ntm collector.
func NewNTMClient() NTMClient {
	return &cliNTMClient{lookPath: exec.LookPath, run: runCommand}
}

func (c *cliNTMClient) Fetch(ctx context.Context) (NTMSnapshot, error) {
	snap := NTMSnapshot{Sessions: []NTMSession{}, CapturedAt: time.Now()}

	if _, err := c.lookPath("ntm"); err != nil {
		return snap, nil
	}
	out, err := c.run(ctx, "ntm", "list", "--json")
	if err != nil {
		return snap, err
	}

	var sessions []NTMSession
	if err := json.Unmarshal([]byte(out), &sessions); err != nil {
		return snap, err
	}
	snap.Available = true
	snap.Sessions = sessions
	return snap, nil
}

// cliBeadsClient shells out to br and bv.
type cliBeadsClient struct {
	lookPath func(string) (string, error)
	run      commandRunner
}

// NewBeadsClient returns the CLI-backed beads collector.
func NewBeadsClient() BeadsClient {
	return &cliBeadsClient{lookPath: exec.LookPath, run: runCommand}
}

type beadsIssue struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *cliBeadsClient) Fetch(ctx context.Context) (BeadsSnapshot, error) {
	snap := BeadsSnapshot{CapturedAt: time.Now()}

	if _, err := c.lookPath("bv"); err == nil {
		snap.BVAvailable = true
	}
	if _, err := c.lookPath("br"); err != nil {
		snap.Available = snap.BVAvailable
		return snap, nil
	}
	snap.BRAvailable = true
	snap.Available = true

	out, err := c.run(ctx, "br", "list", "--json")
	if err != nil {
		// br exists but the database query failed; availability stands.
		return snap, nil
	}
	var issues []beadsIssue
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		return snap, nil
	}
	for _, issue := range issues {
		switch issue.Status {
		case "ready":
			snap.ReadyIssues++
			snap.OpenIssues++
		case "closed", "done":
		default:
			snap.OpenIssues++
		}
	}
	return snap, nil
}

// workflowTools are the guarded CLIs the tool-health collector probes.
var workflowTools = []string{"dcg", "slb", "ubs"}

// ecosystemMarkers map project marker files to ecosystem names.
var ecosystemMarkers = map[string]string{
	"go.mod":           "go",
	"package.json":     "node",
	"Cargo.toml":       "rust",
	"pyproject.toml":   "python",
	"requirements.txt": "python",
}

// cliToolHealthClient probes dcg/slb/ubs and sniffs project ecosystems.
type cliToolHealthClient struct {
	cwd      string
	lookPath func(string) (string, error)
	run      commandRunner
}

// NewToolHealthClient returns the CLI-backed tool-health collector rooted
// at cwd.
func NewToolHealthClient(cwd string) ToolHealthClient {
	return &cliToolHealthClient{cwd: cwd, lookPath: exec.LookPath, run: runCommand}
}

func (c *cliToolHealthClient) Fetch(ctx context.Context) (ToolHealthSnapshot, error) {
	snap := ToolHealthSnapshot{Tools: []WorkflowTool{}, CapturedAt: time.Now()}

	installed := 0
	for _, name := range workflowTools {
		tool := WorkflowTool{Name: name}
		if _, err := c.lookPath(name); err == nil {
			tool.Installed = true
			installed++
			if out, err := c.run(ctx, name, "--version"); err == nil {
				tool.Version = strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
			}
		}
		snap.Tools = append(snap.Tools, tool)
	}

	for marker, eco := range ecosystemMarkers {
		if _, err := os.Stat(filepath.Join(c.cwd, marker)); err == nil {
			if !contains(snap.Ecosystems, eco) {
				snap.Ecosystems = append(snap.Ecosystems, eco)
			}
		}
	}

	snap.Available = installed > 0
	switch installed {
	case len(workflowTools):
		snap.Status = StatusHealthy
	case 0:
		snap.Status = StatusUnhealthy
	default:
		snap.Status = StatusDegraded
	}
	return snap, nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// fileMailReader reads the append-only JSONL mailbox under cwd.
type fileMailReader struct {
	dir string
}

// NewMailReader returns the JSONL-backed Agent Mail collector rooted at cwd.
func NewMailReader(cwd string) MailReader {
	return &fileMailReader{dir: filepath.Join(cwd, MailDirName)}
}

func (r *fileMailReader) Fetch(ctx context.Context) (AgentMailSnapshot, error) {
	snap := AgentMailSnapshot{Status: StatusUnknown, Agents: []MailAgent{}, CapturedAt: time.Now()}

	if _, err := os.Stat(r.dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Store absent; the mailbox subsystem is not running.
			return snap, nil
		}
		return snap, err
	}
	snap.Available = true

	readLines(filepath.Join(r.dir, "agents.jsonl"), func(line []byte) {
		var agent MailAgent
		if json.Unmarshal(line, &agent) == nil && agent.Name != "" {
			snap.Agents = append(snap.Agents, agent)
		}
	})
	readLines(filepath.Join(r.dir, "messages.jsonl"), func(line []byte) {
		var msg MailMessage
		if json.Unmarshal(line, &msg) != nil || msg.ID == "" {
			return
		}
		snap.TotalMessages++
		if !msg.Read {
			snap.UnreadCount++
		}
	})

	if len(snap.Agents) > 0 {
		snap.Status = StatusHealthy
	} else {
		snap.Status = StatusDegraded
	}
	return snap, nil
}

// readLines feeds each non-empty line to fn. Malformed lines are the
// callback's problem; a missing file is a no-op.
func readLines(path string, fn func([]byte)) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn([]byte(line))
	}
}
