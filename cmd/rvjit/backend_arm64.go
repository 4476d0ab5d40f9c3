//go:build linux && arm64

package main

import (
	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/backend/arm64"
)

func newEmitter() backend.Emitter { return arm64.Emitter{} }
