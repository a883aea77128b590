package overlay

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/sentinel-replay/pkg/model"
	"github.com/mpapenbr/sentinel-replay/pkg/telemetry/buffer"
)

type Severity string

const (
	SeverityCritical     Severity = "System Critical"
	SeverityWarning      Severity = "System Warning"
	SeverityPhysical     Severity = "Physical Event"
	SeverityUnclassified Severity = "Unclassified"
)

const (
	EventDropoutRPM      = "SENSOR DROPOUT (RPM)"
	EventDropoutThrottle = "SENSOR DROPOUT (THROTTLE)"
	EventLockUp          = "DRIVER LOCK-UP"
	EventTractionLoss    = "TRACTION LOSS"
	EventDRSFault        = "DRS ACTUATION FAULT"
	EventAnomalous       = "ANOMALOUS BEHAVIOR"
)

const (
	dropoutMinSpeed = 100.0
	lockUpMinBrake  = 50.0
)

var eventSeverity = map[string]Severity{
	EventDropoutRPM:      SeverityCritical,
	EventDropoutThrottle: SeverityCritical,
	EventLockUp:          SeverityPhysical,
	EventTractionLoss:    SeverityPhysical,
	EventDRSFault:        SeverityWarning,
	EventAnomalous:       SeverityUnclassified,
}

var featureUnits = map[model.Channel]string{
	model.ChannelSpeed:    "km/h",
	model.ChannelRPM:      "RPM",
	model.ChannelThrottle: "%",
	model.ChannelBrake:    "(On/Off)",
	model.ChannelGear:     "Gear",
	model.ChannelDRS:      "State",
}

type Classification struct {
	Event    string   `json:"event"`
	Severity Severity `json:"severity"`
}

// Finding is an entry with its classification and explanation resolved against
// the buffer content at the flagged index.
type Finding struct {
	Entry
	Classification
	Raw model.Sample `json:"raw"`
}

// Classify applies plausibility rules to the top contributing features of an
// anomaly and the raw sample at the flagged index. Rules are checked in order,
// the first match wins.
func Classify(top []model.FeatureScore, raw model.Sample) Classification {
	has := func(c model.Channel) bool {
		return lo.ContainsBy(top, func(f model.FeatureScore) bool {
			return f.Name == string(c)
		})
	}
	if raw.Speed > dropoutMinSpeed {
		if raw.RPM == 0 {
			return Classification{EventDropoutRPM, SeverityCritical}
		}
		if has(model.ChannelThrottle) && raw.Throttle == 0 {
			return Classification{EventDropoutThrottle, SeverityCritical}
		}
	}
	if has(model.ChannelBrake) && has(model.ChannelSpeed) && raw.Brake > lockUpMinBrake {
		return Classification{EventLockUp, SeverityPhysical}
	}
	if has(model.ChannelRPM) && has(model.ChannelThrottle) {
		return Classification{EventTractionLoss, SeverityPhysical}
	}
	if has(model.ChannelDRS) {
		return Classification{EventDRSFault, SeverityWarning}
	}
	return Classification{EventAnomalous, SeverityUnclassified}
}

// SeverityOf returns the severity of a known event, SeverityUnclassified
// otherwise. Case and surrounding blanks are ignored.
func SeverityOf(event string) Severity {
	if sev, ok := eventSeverity[strings.ToUpper(strings.TrimSpace(event))]; ok {
		return sev
	}
	return SeverityUnclassified
}

// Explain renders a plain text report for a finding.
func Explain(f *Finding, threshold float64) string {
	if len(f.TopFeatures) == 0 {
		return "Insufficient data for forensic analysis."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "EVENT #%d CLASSIFICATION: %s\n", f.Window, f.Event)
	fmt.Fprintf(&sb, "SEVERITY: %s (Error: %s / Threshold: %s)\n\n",
		f.Severity, fixed4(f.Error), fixed4(threshold))
	sb.WriteString("PRIMARY INDICATORS:\n")
	for i, feat := range f.TopFeatures {
		c := model.Channel(feat.Name)
		raw := "N/A"
		if lo.Contains(model.AllChannels, c) {
			raw = decimal.NewFromFloat(f.Raw.Value(c)).String()
		}
		fmt.Fprintf(&sb, "%d. %s (Val: %s %s) - Deviation Score: %s\n",
			i+1, feat.Name, raw, featureUnits[c], fixed4(feat.Score))
	}
	sb.WriteString("\nINTERPRETATION:\n")
	switch f.Event {
	case EventDropoutRPM, EventDropoutThrottle:
		sb.WriteString("CRITICAL FAILURE: Sensor reporting zero output while vehicle " +
			"is at speed. Indicates wire harness failure, ECU disconnect, " +
			"or signal jamming attack.")
	case EventLockUp:
		sb.WriteString("Detected sharp deceleration curve inconsistent with normal " +
			"braking profile. Likely front-tire lockup or threshold braking overshoot.")
	case EventTractionLoss:
		sb.WriteString("Detected RPM spike without corresponding speed increase. " +
			"Indicates rear wheel spin or gearbox/clutch slip event.")
	case EventDRSFault:
		sb.WriteString("DRS state change detected outside authorized activation zones. " +
			"Potential sensor failure or unauthorized driver input.")
	default:
		fmt.Fprintf(&sb, "Uncharacteristic variance detected in %s telemetry channel "+
			"relative to baseline lap model.", f.TopFeatures[0].Name)
	}
	return sb.String()
}

// Findings classifies every entry against the current buffer content. Service
// provided classifications and explanations take precedence.
func (o *Overlay) Findings(src buffer.Reader) []Finding {
	ret := make([]Finding, 0, len(o.entries))
	for _, e := range o.entries {
		raw, err := src.Get(e.Index)
		if err != nil {
			continue
		}
		f := Finding{Entry: e, Raw: raw, Classification: Classify(e.TopFeatures, raw)}
		if e.Tag != "" {
			f.Classification = Classification{Event: e.Tag, Severity: SeverityOf(e.Tag)}
		}
		if f.Explanation == "" {
			f.Explanation = Explain(&f, o.threshold)
		}
		ret = append(ret, f)
	}
	return ret
}

func fixed4(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}
