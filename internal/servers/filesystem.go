package servers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"provider-host/internal/tools"
)

const (
	maxReadFileSize   = 5 << 20
	maxSearchMatches  = 1000
	filesystemArgsKey = "args"
)

var errOutsideRoots = errors.New("path is outside the allowed directories")

// filesystemProvider confines every operation to its allowed roots.
// Symlinks are resolved before the check.
type filesystemProvider struct {
	roots []string
}

func newFilesystemServer(deps Dependencies, args []string) (Server, error) {
	if len(args) == 0 {
		return nil, &ConfigError{Provider: string(KindFilesystem), Key: filesystemArgsKey, Message: "at least one allowed directory is required"}
	}

	roots := make([]string, 0, len(args))
	for _, arg := range args {
		root, err := resolveRoot(arg)
		if err != nil {
			return nil, &ConfigError{Provider: string(KindFilesystem), Key: filesystemArgsKey, Message: fmt.Sprintf("invalid directory %q", arg), Err: err}
		}
		roots = append(roots, root)
	}

	p := &filesystemProvider{roots: roots}

	pathParam := func(desc string) tools.Parameter {
		return tools.Parameter{Name: "path", Type: tools.TypeString, Description: desc, Required: true}
	}
	ts := []tools.Tool{
		tools.NewBaseTool("list_allowed_directories", tools.Schema{
			Name:        "list_allowed_directories",
			Description: "List the directories this provider may access",
		}, p.listAllowed),
		tools.NewBaseTool("read_file", tools.Schema{
			Name:        "read_file",
			Description: "Read the complete contents of a text file",
			Parameters:  []tools.Parameter{pathParam("File to read")},
		}, p.readFile),
		tools.NewBaseTool("write_file", tools.Schema{
			Name:        "write_file",
			Description: "Create or overwrite a file with the given content",
			Parameters: []tools.Parameter{
				pathParam("File to write"),
				{Name: "content", Type: tools.TypeString, Description: "New file content", Required: true},
			},
		}, p.writeFile),
		tools.NewBaseTool("list_directory", tools.Schema{
			Name:        "list_directory",
			Description: "List the entries of a directory",
			Parameters:  []tools.Parameter{pathParam("Directory to list")},
		}, p.listDirectory),
		tools.NewBaseTool("create_directory", tools.Schema{
			Name:        "create_directory",
			Description: "Create a directory and any missing parents",
			Parameters:  []tools.Parameter{pathParam("Directory to create")},
		}, p.createDirectory),
		tools.NewBaseTool("get_file_info", tools.Schema{
			Name:        "get_file_info",
			Description: "Return size, type, permissions and modification time of a path",
			Parameters:  []tools.Parameter{pathParam("Path to inspect")},
		}, p.fileInfo),
		tools.NewBaseTool("search_files", tools.Schema{
			Name:        "search_files",
			Description: "Recursively find entries whose name contains the pattern, ignoring case",
			Parameters: []tools.Parameter{
				pathParam("Directory to search from"),
				{Name: "pattern", Type: tools.TypeString, Description: "Name fragment to look for", Required: true},
			},
		}, p.searchFiles),
		tools.NewBaseTool("move_file", tools.Schema{
			Name:        "move_file",
			Description: "Move or rename a file or directory. Fails if the destination exists.",
			Parameters: []tools.Parameter{
				{Name: "source", Type: tools.TypeString, Description: "Path to move", Required: true},
				{Name: "destination", Type: tools.TypeString, Description: "New path", Required: true},
			},
		}, p.moveFile),
	}

	server, err := newToolServer(string(KindFilesystem), deps, ts...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func resolveRoot(dir string) (string, error) {
	abs, err := filepath.Abs(expandHome(dir))
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", errors.New("not a directory")
	}
	return real, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func (p *filesystemProvider) within(path string) bool {
	for _, root := range p.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolve maps a requested path to a real path inside the roots. Paths
// that do not exist yet are checked through their nearest existing
// ancestor, so a symlinked parent cannot lead outside.
func (p *filesystemProvider) resolve(path string) (string, error) {
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", err
	}

	existing, rest := abs, []string{}
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			full := filepath.Join(append([]string{real}, rest...)...)
			if !p.within(full) {
				return "", errOutsideRoots
			}
			return full, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		// dangling symlink
		if _, lerr := os.Lstat(existing); lerr == nil {
			return "", errOutsideRoots
		}

		parent := filepath.Dir(existing)
		if parent == existing {
			return "", errOutsideRoots
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

func (p *filesystemProvider) resolveInput(input map[string]interface{}, name string) (string, *tools.Result) {
	path, err := p.resolve(tools.String(input, name))
	if err != nil {
		return "", fsErrorResult(err)
	}
	return path, nil
}

func fsErrorResult(err error) *tools.Result {
	switch {
	case errors.Is(err, errOutsideRoots), errors.Is(err, fs.ErrPermission):
		return tools.ErrorResult(tools.CodeAccessDenied, err.Error())
	case errors.Is(err, fs.ErrNotExist):
		return tools.ErrorResult(tools.CodeNotFound, err.Error())
	case errors.Is(err, fs.ErrExist):
		return tools.ErrorResult(tools.CodeInvalidInput, err.Error())
	default:
		return tools.ErrorResult(tools.CodeExecution, err.Error())
	}
}

func (p *filesystemProvider) listAllowed(tools.ExecutionContext, map[string]interface{}) *tools.Result {
	return tools.SuccessResult(map[string]interface{}{"directories": p.roots})
}

func (p *filesystemProvider) readFile(_ tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	path, failed := p.resolveInput(input, "path")
	if failed != nil {
		return failed
	}

	info, err := os.Stat(path)
	if err != nil {
		return fsErrorResult(err)
	}
	if info.IsDir() {
		return tools.ErrorResult(tools.CodeInvalidInput, "path is a directory")
	}
	if info.Size() > maxReadFileSize {
		return tools.ErrorResult(tools.CodeInvalidInput, fmt.Sprintf("file is larger than %d bytes", maxReadFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fsErrorResult(err)
	}
	return tools.SuccessResult(map[string]interface{}{
		"path":    path,
		"content": string(data),
	})
}

func (p *filesystemProvider) writeFile(_ tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	path, failed := p.resolveInput(input, "path")
	if failed != nil {
		return failed
	}

	content := tools.String(input, "content")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fsErrorResult(err)
	}
	return tools.SuccessResult(map[string]interface{}{
		"path":          path,
		"bytes_written": len(content),
	})
}

func (p *filesystemProvider) listDirectory(_ tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	path, failed := p.resolveInput(input, "path")
	if failed != nil {
		return failed
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fsErrorResult(err)
	}

	listing := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "directory"
		}
		listing = append(listing, map[string]interface{}{
			"name": entry.Name(),
			"type": kind,
		})
	}
	return tools.SuccessResult(map[string]interface{}{
		"path":    path,
		"entries": listing,
	})
}

func (p *filesystemProvider) createDirectory(_ tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	path, failed := p.resolveInput(input, "path")
	if failed != nil {
		return failed
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fsErrorResult(err)
	}
	return tools.SuccessResult(map[string]interface{}{"path": path, "created": true})
}

func (p *filesystemProvider) fileInfo(_ tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	path, failed := p.resolveInput(input, "path")
	if failed != nil {
		return failed
	}

	info, err := os.Stat(path)
	if err != nil {
		return fsErrorResult(err)
	}
	return tools.SuccessResult(map[string]interface{}{
		"path":        path,
		"size":        info.Size(),
		"isDirectory": info.IsDir(),
		"isFile":      info.Mode().IsRegular(),
		"permissions": info.Mode().Perm().String(),
		"modified":    info.ModTime().UTC().Format(time.RFC3339),
	})
}

func (p *filesystemProvider) searchFiles(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	root, failed := p.resolveInput(input, "path")
	if failed != nil {
		return failed
	}
	pattern := strings.ToLower(tools.String(input, "pattern"))
	if pattern == "" {
		return tools.ErrorResult(tools.CodeInvalidInput, "pattern cannot be empty")
	}

	matches := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Context.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != root && strings.Contains(strings.ToLower(d.Name()), pattern) {
			matches = append(matches, path)
			if len(matches) >= maxSearchMatches {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return fsErrorResult(err)
	}

	return tools.SuccessResult(map[string]interface{}{
		"path":    root,
		"pattern": pattern,
		"matches": matches,
	})
}

func (p *filesystemProvider) moveFile(_ tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	source, failed := p.resolveInput(input, "source")
	if failed != nil {
		return failed
	}
	destination, failed := p.resolveInput(input, "destination")
	if failed != nil {
		return failed
	}

	if _, err := os.Lstat(destination); err == nil {
		return tools.ErrorResult(tools.CodeInvalidInput, "destination already exists")
	}
	if err := os.Rename(source, destination); err != nil {
		return fsErrorResult(err)
	}
	return tools.SuccessResult(map[string]interface{}{
		"source":      source,
		"destination": destination,
	})
}
