// Package activity writes the markdown log the daemon commits. Each
// fired event appends one timestamped line; the file gets a header the
// first time it is created.
package activity

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const header = "# Activity Log\n\n"

// phrases are the rotating line suffixes, picked at random per entry.
var phrases = []string{
	"Automated maintenance",
	"Routine update",
	"Sync notes",
	"Housekeeping",
	"Keep-alive",
	"Log entry",
	"Notes refresh",
}

// Append adds one activity line to the log file inside the repository,
// creating the file (and any parent directories) with a header when it
// does not exist yet.
func Append(fs afero.Fs, repoPath, commitFile string, now time.Time, rng *rand.Rand) error {
	path := filepath.Join(repoPath, commitFile)
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create activity dir: %w", err)
		}
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("stat activity file: %w", err)
	}

	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open activity file: %w", err)
	}
	defer f.Close()

	if !exists {
		if _, err := f.WriteString(header); err != nil {
			return fmt.Errorf("write activity header: %w", err)
		}
	}

	line := fmt.Sprintf("- %s — %s\n",
		now.Format("2006-01-02 15:04:05"),
		phrases[rng.Intn(len(phrases))],
	)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append activity line: %w", err)
	}
	return nil
}
