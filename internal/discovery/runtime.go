// Package discovery locates a target JavaScript runtime executable on
// the host, checking PATH and well-known install locations.
package discovery

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// RuntimeKind identifies a supported target runtime.
type RuntimeKind int

const (
	Node RuntimeKind = iota
	Deno
	Bun
)

var runtimeNames = map[RuntimeKind]string{
	Node: "Node.js",
	Deno: "Deno",
	Bun:  "Bun",
}

func (k RuntimeKind) String() string {
	if name, ok := runtimeNames[k]; ok {
		return name
	}
	return "unknown runtime"
}

// Candidate is a discovered runtime installation.
type Candidate struct {
	Path     string
	Name     string
	Priority int // lower is better
}

// candidateCommands lists, per runtime, the executable names to look
// up on PATH, in priority order (lower priority value wins ties).
var candidateCommands = []struct {
	kind RuntimeKind
	name string
	cmd  string
}{
	{Node, "Node.js", "node"},
	{Bun, "Bun", "bun"},
	{Deno, "Deno", "deno"},
}

// Discover returns every runtime found on PATH plus well-known install
// locations, best candidate first.
func Discover() []Candidate {
	var candidates []Candidate

	for i, c := range candidateCommands {
		if path, err := exec.LookPath(c.cmd); err == nil {
			candidates = append(candidates, Candidate{Path: path, Name: c.name, Priority: i})
		}
	}

	for i, c := range candidateCommands {
		for _, path := range platformPaths(c.cmd) {
			if isExecutable(path) {
				candidates = append(candidates, Candidate{Path: path, Name: c.name, Priority: i})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	seen := make(map[string]bool)
	unique := candidates[:0]
	for _, c := range candidates {
		if !seen[c.Path] {
			seen[c.Path] = true
			unique = append(unique, c)
		}
	}
	return unique
}

// FindBest returns the path to the best available runtime, honoring
// RUNTIME_EXECUTABLE_PATH if set, or "" if none is found.
func FindBest() string {
	if envPath := os.Getenv("RUNTIME_EXECUTABLE_PATH"); envPath != "" {
		if isExecutable(envPath) {
			return envPath
		}
	}
	if candidates := Discover(); len(candidates) > 0 {
		return candidates[0].Path
	}
	return ""
}

func platformPaths(cmd string) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			filepath.Join("/usr/local/bin", cmd),
			filepath.Join("/opt/homebrew/bin", cmd),
		}
	case "linux":
		return []string{
			filepath.Join("/usr/bin", cmd),
			filepath.Join("/usr/local/bin", cmd),
		}
	case "windows":
		programFiles := os.Getenv("PROGRAMFILES")
		return []string{filepath.Join(programFiles, "nodejs", cmd+".exe")}
	default:
		return nil
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
