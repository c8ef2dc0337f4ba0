package engine

import "gradex/internal/execution/sandbox/spec"

// initRequest is the wire format consumed by the sandbox-init helper on
// stdin. The helper assembles the confined filesystem, applies rlimits,
// seccomp and IO redirection inside the new namespaces, then execs the
// target command.
type initRequest struct {
	RunSpec        spec.RunSpec
	SeccompProfile string
	EnableSeccomp  bool
	EnableNs       bool
}
