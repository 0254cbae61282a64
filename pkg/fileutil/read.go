package fileutil

import (
	"fmt"
	"io"
	"os"
)

// StdinPath is the path argument that selects standard input.
const StdinPath = "-"

// ReadFileOrStdin reads path, or all of stdin when path is StdinPath.
func ReadFileOrStdin(path string, stdin io.Reader) ([]byte, error) {
	if path == StdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
