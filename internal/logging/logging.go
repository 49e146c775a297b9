package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gluk-w/devdash/internal/config"
)

var (
	logFile *os.File
	logPath string
	mu      sync.Mutex
)

// Path returns the log file path in use.
func Path() string {
	if logPath != "" {
		return logPath
	}
	if config.Cfg.LogPath != "" {
		return config.Cfg.LogPath
	}
	return filepath.Join(config.Cfg.DataPath, "devdash.log")
}

// Init sets up dual logging to stdout and a log file.
// Must be called after config.Load().
func Init() {
	InitFile(Path())
}

// InitFile tees the standard logger to stdout and path.
func InitFile(path string) {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	logPath = path
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.Printf("Logging to file: %s", path)
}

// ReadTail returns the last n lines from the log file, keeping only n
// lines in memory at a time.
func ReadTail(n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.Open(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		return "", nil
	}
	ring := make([]string, n)
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	if count <= n {
		return strings.Join(ring[:count], "\n"), nil
	}
	start := count % n
	return strings.Join(append(ring[start:], ring[:start]...), "\n"), nil
}

// Clear truncates the log file.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		if err := logFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate log file: %w", err)
		}
		if _, err := logFile.Seek(0, 0); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
		return nil
	}
	err := os.Truncate(Path(), 0)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
