// Package errorfence re-exports the main types of pkg/errorfence for convenience.
package errorfence

import (
	fence "github.com/KanavDutta/errorfence/pkg/errorfence"
)

type (
	Fence  = fence.Fence
	Config = fence.Config
	Option = fence.Option
)

var (
	New                   = fence.New
	NewConfig             = fence.NewConfig
	LoadConfigFromFile    = fence.LoadConfigFromFile
	WithConfig            = fence.WithConfig
	WithConfigFile        = fence.WithConfigFile
	WithDefaults          = fence.WithDefaults
	WithStore             = fence.WithStore
	WithClock             = fence.WithClock
	WithRecorder          = fence.WithRecorder
	WithIdentityExtractor = fence.WithIdentityExtractor
	WithFailOpen          = fence.WithFailOpen
)
