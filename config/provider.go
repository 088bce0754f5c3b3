package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Fee policy keys.
const (
	KeyDailyLateFeeRate          = "dailyLateFeeRate"
	KeyLateFeeCapPercentage      = "lateFeeCapPercentage"
	KeyNonReturnChargePercentage = "nonReturnChargePercentage"
	KeyFeeFreeThreshold          = "feeFreeThreshold"
	KeyFeeValueIncrement         = "feeValueIncrement"
	KeyFeeStepAmount             = "feeStepAmount"
	KeyFeeBatteryAdder           = "feeBatteryAdder"
	KeyFeeSystemEnabled          = "feeSystemEnabled"
	KeyNonReturnGraceDays        = "nonReturnGraceDays"
	KeyManualReviewThreshold     = "manualReviewThreshold"
)

var envNames = map[string]string{
	KeyDailyLateFeeRate:          "FEE_DAILY_LATE_RATE",
	KeyLateFeeCapPercentage:      "FEE_LATE_CAP_PERCENTAGE",
	KeyNonReturnChargePercentage: "FEE_NON_RETURN_PERCENTAGE",
	KeyFeeFreeThreshold:          "FEE_FREE_THRESHOLD",
	KeyFeeValueIncrement:         "FEE_VALUE_INCREMENT",
	KeyFeeStepAmount:             "FEE_STEP_AMOUNT",
	KeyFeeBatteryAdder:           "FEE_BATTERY_ADDER",
	KeyFeeSystemEnabled:          "FEE_SYSTEM_ENABLED",
	KeyNonReturnGraceDays:        "FEE_NON_RETURN_GRACE_DAYS",
	KeyManualReviewThreshold:     "FEE_MANUAL_REVIEW_THRESHOLD",
}

var defaults = Values{
	KeyNonReturnGraceDays: "30",
}

// Provider is read-only key/value access to policy settings.
type Provider interface {
	Get(key string) (string, bool)
}

// Values is a static Provider.
type Values map[string]string

func (v Values) Get(key string) (string, bool) {
	s, ok := v[key]
	return s, ok
}

// FromEnv reads every known key from its FEE_* variable on top of the defaults.
func FromEnv() Values {
	v := Values{}
	for k, d := range defaults {
		v[k] = d
	}
	for key, env := range envNames {
		if s, ok := os.LookupEnv(env); ok && strings.TrimSpace(s) != "" {
			v[key] = strings.TrimSpace(s)
		}
	}
	return v
}

// MergeYAML overlays a flat YAML mapping of policy keys, e.g.
//
//	dailyLateFeeRate: 2.50
//	feeSystemEnabled: true
func (v Values) MergeYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse fee policy: %w", err)
	}
	for k, val := range raw {
		if _, known := envNames[k]; !known {
			return fmt.Errorf("unknown fee policy key %q", k)
		}
		v[k] = fmt.Sprint(val)
	}
	return nil
}

func (v Values) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fee policy: %w", err)
	}
	return v.MergeYAML(data)
}

// Decimal returns the key as a decimal, zero when missing or malformed.
func Decimal(p Provider, key string) decimal.Decimal {
	s, ok := p.Get(key)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func Bool(p Provider, key string) bool {
	s, ok := p.Get(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

func Int(p Provider, key string, def int) int {
	s, ok := p.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
