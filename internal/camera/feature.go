package camera

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// A Feature is one nodemap write applied before streaming.
type Feature struct {
	Name string

	// Literal value, or "max"/"min" to use the feature's bounds.
	Value string

	// Command features are executed rather than written.
	Command bool

	// Failure to apply an optional feature is logged, not fatal.
	Optional bool
}

func (f Feature) String() string {
	var b strings.Builder
	if f.Optional {
		b.WriteByte('?')
	}
	b.WriteString(f.Name)
	if f.Command {
		b.WriteByte('!')
	} else {
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// ParseFeature parses "Name=Value", "Name=max", "Name!" (command), each
// optionally prefixed with '?' to mark the feature optional.
func ParseFeature(s string) (Feature, error) {
	var f Feature
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "?") {
		f.Optional = true
		s = s[1:]
	}
	if strings.HasSuffix(s, "!") {
		f.Command = true
		f.Name = strings.TrimSuffix(s, "!")
	} else {
		kv := strings.SplitN(s, "=", 2)
		if len(kv) != 2 {
			return f, xerrors.Errorf("camera: feature %q: want Name=Value or Name!", s)
		}
		f.Name, f.Value = strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
	}
	if f.Name == "" {
		return f, xerrors.Errorf("camera: feature %q: empty name", s)
	}
	return f, nil
}

// ParseFeatures parses a list of feature directives.
func ParseFeatures(list []string) ([]Feature, error) {
	var features []Feature
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		f, err := ParseFeature(s)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, nil
}

// DefaultFeatures are the acquisition settings applied to every writable
// camera unless configured otherwise. Transport and auto-adjust features are
// optional because not every device has them.
func DefaultFeatures() []Feature {
	features, _ := ParseFeatures([]string{
		"?StreamAutoNegotiatePacketSize=true",
		"?StreamPacketResendEnable=true",
		"AcquisitionMode=Continuous",
		"?BalanceWhiteEnable=true",
		"?BalanceWhiteAuto=Continuous",
		"?ExposureAuto=Continuous",
		"?GainAuto=Off",
		"?AcquisitionFrameRateEnable=true",
		"?AcquisitionFrameRate=max",
		"?DeviceStreamChannelPacketSize=max",
		"Width=max",
		"Height=max",
		"PixelFormat=PolarizedAngles_0d_45d_90d_135d_BayerRG8",
	})
	return features
}

// Configure writes features to the source's nodemap, in order. It returns a
// *FeatureError (matching ErrConfigurationRejected) for the first required
// feature that fails. Read-only sources and sources without a nodemap are
// left untouched.
func Configure(src Source, features []Feature) error {
	info := src.Info()
	nm, ok := src.(Nodemap)
	if !ok || info.Access == ReadOnly {
		log.Info("%s: nodemap not writable, skipping %d features", info.Name(), len(features))
		return nil
	}

	for _, f := range features {
		value, err := apply(nm, f)
		if err == nil {
			log.Debug("%s: %v", info.Name(), f)
			continue
		}
		ferr := &FeatureError{Source: info.Name(), Feature: f.Name, Value: value, Err: err}
		if f.Optional {
			log.Warn("%v (optional, ignored)", ferr)
			continue
		}
		return ferr
	}
	return nil
}

func apply(nm Nodemap, f Feature) (string, error) {
	if f.Command {
		return "", nm.Execute(f.Name)
	}

	value := f.Value
	switch strings.ToLower(value) {
	case "max", "min":
		min, max, err := nm.FeatureBounds(f.Name)
		if err != nil {
			return value, err
		}
		bound := max
		if strings.ToLower(value) == "min" {
			bound = min
		}
		value = FormatNumber(bound)
	}
	return value, nm.SetFeature(f.Name, value)
}

// FormatNumber renders integral values without a fractional part, so that
// integer features accept them.
func FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
