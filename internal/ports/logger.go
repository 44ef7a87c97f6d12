package ports

import "github.com/bft-labs/scistore/pkg/log"

// Logger is the logging port. It is the public log.Logger so library users
// can pass their own implementation.
type Logger = log.Logger

// Field is a structured logging field.
type Field = log.Field
