package cmd

import (
	"fmt"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// newLogger configures the standard logrus logger, which the simulation
// packages log through, and returns it. A non-empty file receives a copy of
// every entry at or above level.
func newLogger(level, file string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.StandardLogger()
	logger.SetLevel(lvl)
	logger.Formatter = &prefixed.TextFormatter{FullTimestamp: true}
	// the standard logger outlives one call; drop file hooks from earlier ones
	logger.ReplaceHooks(make(logrus.LevelHooks))

	if file != "" {
		pathMap := lfshook.PathMap{}
		for _, l := range logrus.AllLevels {
			if l <= lvl {
				pathMap[l] = file
			}
		}
		logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{DisableColors: true}))
	}
	return logger, nil
}
