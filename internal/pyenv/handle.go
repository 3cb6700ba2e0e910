package pyenv

import (
	"path/filepath"
	"runtime"
)

// Handle locates the executables of one isolated environment. It is derived
// deterministically from (projectID, runtime version, envs root) and never
// persisted; callers recompute it on every request. Keying by the runtime
// version too keeps each project/runtime pair independently addressable:
// switching a project between runtimes never reuses the other runtime's
// environment.
type Handle struct {
	RootDir string `json:"root_dir"`
	Python  string `json:"python"`
	Pip     string `json:"pip"`
	// Server is the dev-server entry point installed by the default
	// package set ("otree" console script).
	Server string `json:"server"`
}

// HandleFor derives the environment handle for a project id and runtime
// version under envsRoot.
func HandleFor(envsRoot, projectID, version string) Handle {
	root := filepath.Join(envsRoot, projectID, version)
	bin := filepath.Join(root, "bin")
	ext := ""
	if runtime.GOOS == "windows" {
		bin = filepath.Join(root, "Scripts")
		ext = ".exe"
	}
	return Handle{
		RootDir: root,
		Python:  filepath.Join(bin, "python"+ext),
		Pip:     filepath.Join(bin, "pip"+ext),
		Server:  filepath.Join(bin, "otree"+ext),
	}
}

// BinDir returns the directory holding the environment's executables.
func (h Handle) BinDir() string { return filepath.Dir(h.Python) }
