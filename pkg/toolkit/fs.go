package toolkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Options configures core tool registration.
type Options struct {
	// WorkingDir anchors relative paths. Defaults to the process
	// working directory.
	WorkingDir string
}

const defaultReadLimit = 200_000

// RegisterCoreTools registers the baseline filesystem tools:
// read_file, list_directory, write_file, edit_file, get_file_info.
func RegisterCoreTools(registry *Registry, opts Options) error {
	if registry == nil {
		return fmt.Errorf("tool registry is required")
	}

	tools := []Definition{
		readFileTool(opts),
		listDirectoryTool(opts),
		writeFileTool(opts),
		editFileTool(opts),
		getFileInfoTool(opts),
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func (o Options) resolve(path string) string {
	if path == "" {
		return o.workingDir()
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(o.workingDir(), path)
}

func (o Options) workingDir() string {
	if o.WorkingDir != "" {
		return o.WorkingDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func readFileTool(opts Options) Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read the contents of a file.",
		Category:    CategoryRead,
		Parameters: []Parameter{
			{Name: "file_path", Type: "string", Description: "Path to the file to read", Required: true},
			{Name: "max_bytes", Type: "number", Description: "Maximum bytes to read (default 200000)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			target := opts.resolve(stringArg(args, "file_path"))

			limit := int64(defaultReadLimit)
			if raw, ok := args["max_bytes"].(float64); ok && raw > 0 {
				limit = int64(raw)
			}

			file, err := os.Open(target)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			defer file.Close()

			data, err := io.ReadAll(io.LimitReader(file, limit+1))
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}

			truncated := int64(len(data)) > limit
			if truncated {
				data = data[:limit]
			}

			return map[string]interface{}{
				"path":      target,
				"content":   string(data),
				"bytes":     len(data),
				"truncated": truncated,
			}, nil
		},
	}
}

func listDirectoryTool(opts Options) Definition {
	return Definition{
		Name:        "list_directory",
		Description: "List the contents of a directory. Defaults to the working directory.",
		Category:    CategoryRead,
		Parameters: []Parameter{
			{Name: "directory_path", Type: "string", Description: "Path to the directory to list"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			target := opts.resolve(stringArg(args, "directory_path"))

			info, err := os.Stat(target)
			if err != nil {
				return nil, fmt.Errorf("directory not found: %s", target)
			}
			if !info.IsDir() {
				return nil, fmt.Errorf("not a directory: %s", target)
			}

			entries, err := os.ReadDir(target)
			if err != nil {
				return nil, fmt.Errorf("failed to list directory: %w", err)
			}

			sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

			lines := make([]string, 0, len(entries))
			for _, entry := range entries {
				if entry.IsDir() {
					lines = append(lines, fmt.Sprintf("[DIR]  %s/", entry.Name()))
					continue
				}
				size := int64(0)
				if fi, err := entry.Info(); err == nil {
					size = fi.Size()
				}
				lines = append(lines, fmt.Sprintf("[FILE] %s (%d bytes)", entry.Name(), size))
			}

			listing := "Empty directory"
			if len(lines) > 0 {
				listing = strings.Join(lines, "\n")
			}

			return map[string]interface{}{
				"path":    target,
				"count":   len(lines),
				"listing": listing,
			}, nil
		},
	}
}

func writeFileTool(opts Options) Definition {
	return Definition{
		Name:        "write_file",
		Description: "Create or overwrite a file with the given content.",
		Category:    CategoryWrite,
		Parameters: []Parameter{
			{Name: "file_path", Type: "string", Description: "Path of the file to write", Required: true},
			{Name: "content", Type: "string", Description: "Content to write", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			target := opts.resolve(stringArg(args, "file_path"))
			content := stringArg(args, "content")

			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("failed to write file: %w", err)
			}

			return map[string]interface{}{
				"path":          target,
				"bytes_written": len(content),
			}, nil
		},
	}
}

func editFileTool(opts Options) Definition {
	return Definition{
		Name:        "edit_file",
		Description: "Replace one exact text match in a file. The old text must occur exactly once.",
		Category:    CategoryWrite,
		Parameters: []Parameter{
			{Name: "file_path", Type: "string", Description: "Path of the file to edit", Required: true},
			{Name: "old_str", Type: "string", Description: "Exact text to replace, including whitespace", Required: true},
			{Name: "new_str", Type: "string", Description: "Replacement text", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			target := opts.resolve(stringArg(args, "file_path"))
			oldStr := stringArg(args, "old_str")
			newStr := stringArg(args, "new_str")

			data, err := os.ReadFile(target)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			content := string(data)

			switch occurrences := strings.Count(content, oldStr); {
			case occurrences == 0:
				return nil, fmt.Errorf("text not found in %s; check whitespace and indentation", target)
			case occurrences > 1:
				return nil, fmt.Errorf("found %d occurrences of the text in %s; provide more context to make the match unique", occurrences, target)
			}

			updated := strings.Replace(content, oldStr, newStr, 1)
			if err := os.WriteFile(target, []byte(updated), 0o644); err != nil {
				return nil, fmt.Errorf("failed to write file: %w", err)
			}

			return map[string]interface{}{"path": target, "replaced": true}, nil
		},
	}
}

func getFileInfoTool(opts Options) Definition {
	return Definition{
		Name:        "get_file_info",
		Description: "Get size, type and timestamps for a file or directory.",
		Category:    CategoryRead,
		Parameters: []Parameter{
			{Name: "file_path", Type: "string", Description: "Path to inspect", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			target := opts.resolve(stringArg(args, "file_path"))

			info, err := os.Stat(target)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", target)
			}

			result := map[string]interface{}{
				"path":         target,
				"name":         info.Name(),
				"is_directory": info.IsDir(),
				"modified":     info.ModTime().Format(time.RFC3339),
			}
			if !info.IsDir() {
				result["size_bytes"] = info.Size()
				result["extension"] = filepath.Ext(target)
			}
			return result, nil
		},
	}
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}
