package process

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	ConfinementMarker = "SNAP"
	confinementArch   = "SNAP_ARCH"
	bundledJVMPrefix  = "/usr/lib/jvm/java-1.8.0-openjdk-"
)

// ConfinedEnvironment returns a copy of env. Inside a confined package (the
// SNAP marker is set) JAVA_HOME points at the bundled JVM and its bin
// directories are put in front of PATH.
func ConfinedEnvironment(env []string) ([]string, bool) {
	result := make([]string, len(env))
	copy(result, env)

	if _, confined := LookupEnv(result, ConfinementMarker); !confined {
		return result, false
	}

	arch, _ := LookupEnv(result, confinementArch)
	javaHome := bundledJVMPrefix + arch
	path, _ := LookupEnv(result, "PATH")

	result = SetEnv(result, "JAVA_HOME", javaHome)
	result = SetEnv(result, "PATH", javaHome+"/bin:"+javaHome+"/jre/bin:"+path)
	return result, true
}

// LookupEnv finds key in a KEY=VALUE list; the last occurrence wins, as for exec.
func LookupEnv(env []string, key string) (string, bool) {
	value, found := "", false
	for _, entry := range env {
		if k, v, ok := strings.Cut(entry, "="); ok && k == key {
			value, found = v, true
		}
	}
	return value, found
}

func SetEnv(env []string, key, value string) []string {
	result := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if k, _, ok := strings.Cut(entry, "="); ok && k == key {
			continue
		}
		result = append(result, entry)
	}
	return append(result, key+"="+value)
}

// ResolveExecutable finds name on the PATH of env rather than the PATH of the
// current process, so a rewritten PATH selects the bundled JVM.
func ResolveExecutable(name string, env []string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if err := checkExecutable(name); err != nil {
			return "", err
		}
		return name, nil
	}

	path, ok := LookupEnv(env, "PATH")
	if !ok {
		path = os.Getenv("PATH")
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if runtime.GOOS == "windows" && filepath.Ext(candidate) == "" {
			candidate += ".exe"
		}
		if checkExecutable(candidate) == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH", name)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
