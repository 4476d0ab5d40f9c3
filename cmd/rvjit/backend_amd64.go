//go:build linux && amd64

package main

import (
	"github.com/rv32dbt/core/internal/backend"
	"github.com/rv32dbt/core/internal/backend/amd64"
)

func newEmitter() backend.Emitter { return amd64.Emitter{} }
