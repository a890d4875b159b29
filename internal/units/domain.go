package units

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Conversion is a directed factor: qty[to] = qty[from] * Factor, scoped to one material.
type Conversion struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	FromUnit   string          `json:"from_unit" validate:"required,max=32"`
	ToUnit     string          `json:"to_unit" validate:"required,max=32,nefield=FromUnit"`
	Factor     decimal.Decimal `json:"factor"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

var (
	// ErrConversionNotDefined is matched by every ConversionError.
	ErrConversionNotDefined = errors.New("units: conversion not defined")
	// ErrInvalidFactor rejects zero or negative factors.
	ErrInvalidFactor = errors.New("units: factor must be positive")
	// ErrIdentityConversion rejects storing from == to, which is always 1.
	ErrIdentityConversion = errors.New("units: identity conversion is implicit")
)

// ConversionError reports the missing directed pair.
type ConversionError struct {
	MaterialID int64
	From       string
	To         string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("units: conversion not defined for material %d: %s -> %s", e.MaterialID, e.From, e.To)
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversionNotDefined
}
