package extensions

import (
	"os"
	"strings"
)

// GetTextFromFile returns the trimmed content of a small secret file such as a vault role id
func GetTextFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
