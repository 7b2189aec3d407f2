// Package deploy runs commands against a SLURM cluster login node. The
// target is either the local machine (when launching from the login node
// itself) or a remote host reached over SSH, resolved through the user's
// SSH config. Dry-run mode prints what would run without touching the
// target.
package deploy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Logger receives debug output from the executor.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}

// Executor runs shell commands on the submission target.
type Executor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool
	Logger        Logger
}

// NewExecutor creates an executor for the given target. An empty target,
// "localhost" or "127.0.0.1" runs commands locally without SSH.
func NewExecutor(target, sshUser, sshKey, identityAgent string, dryRun bool) *Executor {
	return &Executor{
		Target:        target,
		SSHUser:       sshUser,
		SSHKey:        sshKey,
		IdentityAgent: identityAgent,
		DryRun:        dryRun,
		Logger:        nopLogger{},
	}
}

// SetLogger sets the debug logger.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.Logger = logger
	}
}

// IsLocal reports whether commands run without SSH.
func (e *Executor) IsLocal() bool {
	return e.Target == "localhost" || e.Target == "127.0.0.1" || e.Target == ""
}

// Run executes a shell command on the target and returns its combined
// output.
func (e *Executor) Run(command string) (string, error) {
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute: %s", command), nil
	}

	e.Logger.Debugf("Executing: %s (target=%s, local=%v)", command, e.Target, e.IsLocal())

	var output string
	var err error
	if e.IsLocal() {
		output, err = e.runLocal(command)
	} else {
		output, err = e.runSSH(command)
	}
	if err != nil {
		e.Logger.Debugf("Command failed: %v, output: %s", err, output)
	}
	return output, err
}

// CopyFile copies a local file to the target path. Remote copies go
// through scp.
func (e *Executor) CopyFile(src, dst string) error {
	if e.DryRun {
		return nil
	}

	e.Logger.Debugf("Copying file: %s -> %s (target=%s, local=%v)", src, dst, e.Target, e.IsLocal())

	var err error
	if e.IsLocal() {
		err = e.copyLocal(src, dst)
	} else {
		err = e.copySCP(src, dst)
	}
	if err != nil {
		e.Logger.Debugf("Copy failed: %v", err)
	}
	return err
}

// WriteFile writes content to a file on the target.
func (e *Executor) WriteFile(path, content string) error {
	if e.DryRun {
		return nil
	}

	if e.IsLocal() {
		return os.WriteFile(path, []byte(content), 0o644)
	}

	cmd := e.buildSSHCommand(fmt.Sprintf("cat > %s", path))
	cmd.Stdin = strings.NewReader(content)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ssh write failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

func (e *Executor) runLocal(command string) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (e *Executor) runSSH(command string) (string, error) {
	cmd := e.buildSSHCommand(command)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (e *Executor) buildSSHCommand(command string) *exec.Cmd {
	args := e.sshArgs()
	args = append(args, e.sshTarget(), command)
	return exec.Command("ssh", args...)
}

func (e *Executor) sshArgs() []string {
	var args []string
	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}
	if e.IdentityAgent != "" {
		args = append(args, "-o", fmt.Sprintf("IdentityAgent=%s", e.IdentityAgent))
	}
	// Host key checking is disabled for automation against trusted
	// cluster login nodes; connections are not MITM-safe with these
	// options, so do not point this at untrusted hosts.
	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR")
	return args
}

func (e *Executor) sshTarget() string {
	target := e.Target
	if e.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.SSHUser, target)
	}
	return target
}

func (e *Executor) copyLocal(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

func (e *Executor) copySCP(src, dst string) error {
	var args []string
	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}
	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null")
	args = append(args, src, fmt.Sprintf("%s:%s", e.sshTarget(), dst))

	e.Logger.Debugf("SCP command: scp %v", args)
	if err := exec.Command("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp failed: %w", err)
	}
	return nil
}
