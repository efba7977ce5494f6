package engine

import (
	"os"
	"strings"

	"github.com/delaney/hookline/internal/logging"
)

// DefaultEnvAllowlist is the set of process variables copied into a
// hook's environment. Everything else is withheld.
var DefaultEnvAllowlist = []string{"HOME", "PATH", "LANG", "LC_ALL", "TZ", "USER"}

// envMetachars are shell metacharacters that disqualify a custom
// variable value. Offending variables are dropped and logged, never
// escaped: escaping is where injection bugs live.
const envMetachars = ";|&$`()"

// sanitizeEnv builds the subprocess environment: allow-listed
// variables copied from the current process plus custom variables
// whose values are free of shell metacharacters.
func sanitizeEnv(allow []string, custom map[string]string, logger *logging.Logger) []string {
	env := make([]string, 0, len(allow)+len(custom))
	for _, key := range allow {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	for key, val := range custom {
		if strings.ContainsAny(val, envMetachars) {
			if logger != nil {
				logger.WarnCtx("dropping environment variable with shell metacharacters", map[string]any{
					"var": key,
				})
			}
			continue
		}
		env = append(env, key+"="+val)
	}
	return env
}
