package serverconfig

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	eulaHeader     = "#By changing the setting below to TRUE you are indicating your agreement to our EULA (https://account.mojang.com/documents/minecraft_eula).\n"
	eulaTimeLayout = "Mon 02 Jan 2006 15:04:05 MST"
	eulaAgreed     = "eula=true"
)

// readEula never fails: a missing or unreadable file means not agreed.
func readEula(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == eulaAgreed {
			return true
		}
	}
	return false
}

func renderEula(agreed bool, now time.Time) []byte {
	return []byte(fmt.Sprintf("%s#%s\neula=%t\n", eulaHeader, now.UTC().Format(eulaTimeLayout), agreed))
}

func writeEula(path string, agreed bool, now time.Time) error {
	return writeFileAtomic(path, renderEula(agreed, now), 0644)
}
