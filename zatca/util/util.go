package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "zatca.util")

func DebugEnabled() bool {
	return etb("ZATCA_DEBUG")
}

func etb(envName string) bool {
	v, ok := LookupEnv(envName)
	if !ok {
		return false
	}

	bv, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("ignoring %s: %q is not a boolean", envName, v)
		return false
	}
	return bv
}

// LookupEnv returns the trimmed value of key. Blank values count as unset.
func LookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func EnvOrDefault(key, def string) string {
	if v, ok := LookupEnv(key); ok {
		return v
	}
	return def
}

// EnvDuration parses key as a Go duration ("30s") or a whole number of
// seconds.
func EnvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := LookupEnv(key)
	if !ok {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0, errors.Errorf("%s must be positive, got %d", key, secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
