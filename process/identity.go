package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writeIdentityFiles writes <pidDir>/<pid>.proc (containing the process
// name) and <pidDir>/<name>.pid (containing the pid), and best-effort
// removes a stale .proc file left behind by a previous instance of the same
// named process, the way PROC_init's PID/.proc dance does.
func writeIdentityFiles(procDir, pidDir, name string) (procFile, pidFile string, err error) {
	pidFile = filepath.Join(pidDir, name+".pid")

	if oldPID, ok := readOldPID(pidFile); ok {
		staleProc := filepath.Join(procDir, strconv.Itoa(oldPID)+".proc")
		if claimsName(staleProc, name) {
			_ = os.Remove(staleProc)
		}
	}

	pid := os.Getpid()
	procFile = filepath.Join(procDir, strconv.Itoa(pid)+".proc")
	if err := os.WriteFile(procFile, []byte(name), 0o644); err != nil {
		return "", "", fmt.Errorf("process: write %s: %w", procFile, err)
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return procFile, "", fmt.Errorf("process: write %s: %w", pidFile, err)
	}
	return procFile, pidFile, nil
}

func readOldPID(pidFile string) (int, bool) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 1 {
		return 0, false
	}
	return pid, true
}

func claimsName(procFile, name string) bool {
	data, err := os.ReadFile(procFile)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == name
}

// removeIdentityFiles removes the identity files written at Init, mirroring
// PROC_cleanup.
func removeIdentityFiles(procFile, pidFile string) {
	if procFile != "" {
		_ = os.Remove(procFile)
	}
	if pidFile != "" {
		_ = os.Remove(pidFile)
	}
}
