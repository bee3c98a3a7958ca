// Package config provides the options that control migration generation and the
// application settings of the resmigrate tools.
//
// GenerateOptions is the programmatic API used when resmigrate is embedded as a
// library. Settings is what the CLI and the HTTP server load from the environment and
// an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrPostDeployRequired is returned by the guard when a post-deploy action is found
	// and the caller chose neither to skip nor to allow such actions.
	ErrPostDeployRequired = errors.New("post-deploy migration required")
	// ErrConflictingPostDeployOptions is returned when both skip and allow are set.
	ErrConflictingPostDeployOptions = errors.New("post-deploy actions cannot be both skipped and allowed")
)

// GenerateOptions contains the options of one diff run.
type GenerateOptions struct {
	// DropUnmatchedIndexes turns existing indexes without a structural match in the
	// target into DROP_INDEX actions. Otherwise they are only logged.
	DropUnmatchedIndexes bool
	// SkipPostDeployActions leaves out column alterations and index builds.
	SkipPostDeployActions bool
	// AllowPostDeployActions keeps column alterations and index builds inline.
	AllowPostDeployActions bool
	// AnalyzeResourceTables appends ANALYZE for every resource table.
	AnalyzeResourceTables bool
}

// DefaultGenerateOptions returns options that fail on the first post-deploy action.
func DefaultGenerateOptions() *GenerateOptions {
	return &GenerateOptions{}
}

// WithSkipPostDeployActions returns default options that skip post-deploy actions.
func WithSkipPostDeployActions() *GenerateOptions {
	return &GenerateOptions{SkipPostDeployActions: true}
}

// WithAllowPostDeployActions returns default options that allow post-deploy actions.
func WithAllowPostDeployActions() *GenerateOptions {
	return &GenerateOptions{AllowPostDeployActions: true}
}

// Validate checks the options for contradictions.
func (o *GenerateOptions) Validate() error {
	if o.SkipPostDeployActions && o.AllowPostDeployActions {
		return ErrConflictingPostDeployOptions
	}
	return nil
}

// PostDeployGuard wraps an action that should normally run in a separate post-deploy
// pass. It calls add when the action is allowed, does nothing when it is skipped and
// returns ErrPostDeployRequired otherwise.
type PostDeployGuard func(description string, add func()) error

// Guard returns the PostDeployGuard for these options.
func (o *GenerateOptions) Guard(logger *slog.Logger) PostDeployGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return func(description string, add func()) error {
		switch {
		case o.SkipPostDeployActions:
			logger.Info("Skipping post-deploy migration", "migration", description)
			return nil
		case o.AllowPostDeployActions:
			add()
			return nil
		default:
			return fmt.Errorf("%w for: %s", ErrPostDeployRequired, description)
		}
	}
}
