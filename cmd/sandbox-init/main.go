//go:build linux

// The sandbox-init helper is spawned by the engine inside fresh namespaces.
// It reads its instructions as JSON on stdin, assembles the confined
// filesystem view, locks the process down with rlimits and seccomp,
// redirects IO to the per-case files, then execs the target command. Any
// setup failure is reported on stderr and exits 1.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

type initRequest struct {
	RunSpec        runSpec
	SeccompProfile string
	EnableSeccomp  bool
	EnableNs       bool
}

type runSpec struct {
	RunID      string
	WorkDir    string
	RootDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	BindMounts []mountSpec
	Limits     resourceLimit
}

type mountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

type resourceLimit struct {
	CPUTimeMs  int64
	WallTimeMs int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}

	if req.EnableNs {
		// Mount changes must not propagate back to the host.
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
		if err := applyBindMounts(req.RunSpec.RootDir, req.RunSpec.BindMounts); err != nil {
			return err
		}
		if req.RunSpec.RootDir != "" {
			if err := mountProc(req.RunSpec.RootDir); err != nil {
				return err
			}
		}
	} else if len(req.RunSpec.BindMounts) > 0 || req.RunSpec.RootDir != "" {
		return fmt.Errorf("filesystem confinement requires namespaces")
	}

	if err := applyRlimits(req.RunSpec.Limits); err != nil {
		return err
	}
	// The per-case IO files live on the host side of the workspace; open
	// them before the root switch so the descriptors survive it.
	if err := redirectIO(req.RunSpec); err != nil {
		return err
	}
	seccompData, err := loadSeccompProfile(req)
	if err != nil {
		return err
	}

	workDir := req.RunSpec.WorkDir
	if req.RunSpec.RootDir != "" {
		if err := unix.Chroot(req.RunSpec.RootDir); err != nil {
			return fmt.Errorf("chroot: %w", err)
		}
		workDir = confinedWorkDir(req.RunSpec)
	}
	if err := os.Chdir(workDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}

	if len(seccompData) > 0 {
		if err := applySeccomp(seccompData); err != nil {
			return err
		}
	}

	env := req.RunSpec.Env
	if len(env) == 0 {
		env = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
	}
	env = append(env, "HOME="+workDir, "TMPDIR="+workDir)

	cmdPath, err := exec.LookPath(req.RunSpec.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

func decodeRequest(r io.Reader) (initRequest, error) {
	var req initRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return initRequest{}, fmt.Errorf("decode init request: %w", err)
	}
	return req, nil
}

func applyBindMounts(root string, mounts []mountSpec) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount spec")
		}
		target := m.Target
		if root != "" {
			target = filepath.Join(root, m.Target)
		}
		if err := ensureMountTarget(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind mount %s: %w", m.Target, err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount readonly %s: %w", m.Target, err)
			}
		}
	}
	return nil
}

// mountProc gives the fresh pid namespace its own proc view inside the
// confined root.
func mountProc(root string) error {
	target := filepath.Join(root, "proc")
	if err := os.MkdirAll(target, 0o555); err != nil {
		return fmt.Errorf("create proc dir: %w", err)
	}
	if err := unix.Mount("proc", target, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil {
		return fmt.Errorf("mount proc: %w", err)
	}
	return nil
}

// confinedWorkDir resolves where the scratch workspace ends up after the
// root switch.
func confinedWorkDir(rs runSpec) string {
	for _, m := range rs.BindMounts {
		if m.Source == rs.WorkDir {
			return m.Target
		}
	}
	return "/"
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func applyRlimits(limits resourceLimit) error {
	if limits.CPUTimeMs > 0 {
		// RLIMIT_CPU has second granularity; round up.
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := setRlimit(unix.RLIMIT_CPU, seconds); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputMB > 0 {
		if err := setRlimit(unix.RLIMIT_FSIZE, uint64(limits.OutputMB)*1024*1024); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if limits.StackMB > 0 {
		if err := setRlimit(unix.RLIMIT_STACK, uint64(limits.StackMB)*1024*1024); err != nil {
			return fmt.Errorf("set rlimit stack: %w", err)
		}
	}
	if limits.PIDs > 0 {
		if err := setRlimit(unix.RLIMIT_NPROC, uint64(limits.PIDs)); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	return nil
}

func setRlimit(resource int, value uint64) error {
	return unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value})
}

func redirectIO(rs runSpec) error {
	if err := dupFile(rs.StdinPath, os.O_RDONLY, int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("redirect stdin: %w", err)
	}
	if err := dupFile(rs.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("redirect stdout: %w", err)
	}
	if err := dupFile(rs.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("redirect stderr: %w", err)
	}
	return nil
}

func dupFile(path string, flags, targetFd int) error {
	if path == "" {
		path = "/dev/null"
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return unix.Dup2(int(f.Fd()), targetFd)
}

type seccompProfile struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []seccompRule `json:"syscalls"`
}

type seccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

// loadSeccompProfile reads the profile while the host filesystem is still
// visible; the filter itself is installed after the root switch.
func loadSeccompProfile(req initRequest) ([]byte, error) {
	if !req.EnableSeccomp || req.SeccompProfile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(req.SeccompProfile)
	if err != nil {
		return nil, fmt.Errorf("read seccomp profile: %w", err)
	}
	return data, nil
}

func applySeccomp(data []byte) error {
	var profile seccompProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}

	defaultAction, err := parseAction(profile.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range profile.Syscalls {
		action, err := parseAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			sc, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Syscall unknown to this kernel; the default action covers it.
				continue
			}
			if err := filter.AddRuleExact(sc, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action %q", action)
	}
}
