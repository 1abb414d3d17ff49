package service

import (
	"strings"
	"time"

	"github.com/nanorand/nanorand"
)

// CodeGenerator produces a human-readable order code.
type CodeGenerator func(now time.Time) (string, error)

// NewOrderCode returns codes shaped ORD-YYYYMMDD-XXXXXX.
func NewOrderCode(now time.Time) (string, error) {
	rng, err := nanorand.Gen(6)
	if err != nil {
		return "", err
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(rng), nil
}
