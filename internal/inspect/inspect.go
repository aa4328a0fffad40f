// Package inspect runs external analyzer commands (readelf, file) over
// extracted payload files and memoizes their parsed output. Each
// (path, tool) pair spawns at most one process per run; a global
// semaphore bounds concurrent spawns independently of the package
// worker count.
package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ralt/rpmcheck/internal/models"
)

// Tool identifies one external analysis command
type Tool int

const (
	// ToolDynamic runs readelf -W -d: dynamic section entries
	ToolDynamic Tool = iota
	// ToolProgramHeaders runs readelf -W -l: program headers
	ToolProgramHeaders
	// ToolFileType runs file --brief: file-type classification
	ToolFileType
)

// String returns the string representation of Tool
func (t Tool) String() string {
	switch t {
	case ToolDynamic:
		return "readelf-dynamic"
	case ToolProgramHeaders:
		return "readelf-program-headers"
	case ToolFileType:
		return "file"
	default:
		return "unknown"
	}
}

func (t Tool) command(path string) (string, []string) {
	switch t {
	case ToolDynamic:
		return "readelf", []string{"-W", "-d", path}
	case ToolProgramHeaders:
		return "readelf", []string{"-W", "-l", path}
	default:
		return "file", []string{"--brief", path}
	}
}

// DynEntry is one parsed dynamic-section entry, e.g. {NEEDED, libc.so.6}
type DynEntry struct {
	Key   string
	Value string
}

// ProgHeader is one parsed program header with its flags, spaces removed
type ProgHeader struct {
	Type  string
	Flags string
}

// Result is the memoized outcome of one tool on one file. Available is
// false when the tool could not run or produced nothing parseable; the
// zero values then stand for "tool unavailable" rather than an error.
type Result struct {
	Tool      Tool
	Available bool

	// ToolDynamic
	Dynamic []DynEntry
	Needed  []string
	SONAME  string
	RPaths  []string

	// ToolProgramHeaders
	ProgramHeaders []ProgHeader

	// ToolFileType
	FileType string
}

type cacheKey struct {
	path string
	tool Tool
}

type cacheEntry struct {
	done chan struct{}
	res  *Result
	err  error
}

// Cache memoizes inspection results for one run. Concurrent Inspect
// calls for the same key block on the single in-flight invocation.
type Cache struct {
	timeout time.Duration
	sem     *semaphore.Weighted

	// command builds the argv for a tool; tests swap it out
	command func(tool Tool, path string) (string, []string)

	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// NewCache builds a Cache with a per-invocation timeout and a global
// bound on concurrently running analyzer processes.
func NewCache(timeout time.Duration, maxProcs int) *Cache {
	if maxProcs < 1 {
		maxProcs = 1
	}
	return &Cache{
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(maxProcs)),
		command: func(tool Tool, path string) (string, []string) { return tool.command(path) },
		entries: make(map[cacheKey]*cacheEntry),
	}
}

// Inspect returns the memoized result for (path, tool), running the
// tool on first use. A hung process is killed after the configured
// timeout and surfaces as an InspectionTimeout error; other spawn
// failures surface as InspectionFailure. Both are memoized so a bad
// file is probed at most once.
func (c *Cache) Inspect(ctx context.Context, path string, tool Tool) (*Result, error) {
	key := cacheKey{path: path, tool: tool}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{done: make(chan struct{})}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	if ok {
		select {
		case <-entry.done:
			return entry.res, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry.res, entry.err = c.run(ctx, path, tool)
	close(entry.done)
	return entry.res, entry.err
}

func (c *Cache) run(ctx context.Context, path string, tool Tool) (*Result, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	tctx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	name, args := c.command(tool, path)
	cmd := exec.CommandContext(tctx, name, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	if tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		logrus.Warnf("%s timed out on %s", tool, path)
		return &Result{Tool: tool}, &models.CheckError{
			Type:   models.ErrInspectionTimeout,
			Target: path,
			Err:    fmt.Errorf("%s exceeded %s", tool, c.timeout),
		}
	}
	if cerr := ctx.Err(); cerr != nil {
		// Run-level cancellation, not a property of this file
		return nil, cerr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Tool ran but rejected the file (not ELF, truncated...):
			// degrade to "tool unavailable" for this path.
			return &Result{Tool: tool}, nil
		}
		logrus.Warnf("%s failed on %s: %v", tool, path, err)
		return &Result{Tool: tool}, &models.CheckError{
			Type:   models.ErrInspectionFailure,
			Target: path,
			Err:    fmt.Errorf("%s: %w", tool, err),
		}
	}

	return parseOutput(tool, stdout.String()), nil
}

func parseOutput(tool Tool, out string) *Result {
	switch tool {
	case ToolDynamic:
		return parseDynamicSection(out)
	case ToolProgramHeaders:
		return parseProgramHeaders(out)
	default:
		return parseFileType(out)
	}
}
